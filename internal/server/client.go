// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/chat"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// wsConn adapts a WebSocket to chat.Conn. Each inbound text frame is one
// line; each queued message goes out as text.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	addr   string
	out    *outbox
	logger *slog.Logger
}

func newWSConn(id string, conn *websocket.Conn, addr string, sendBuffer int, logger *slog.Logger) *wsConn {
	conn.SetReadLimit(maxLineBytes)
	return &wsConn{
		id:     id,
		conn:   conn,
		addr:   addr,
		out:    newOutbox(sendBuffer),
		logger: logger.With("client_id", id, "addr", addr, "transport", "websocket"),
	}
}

func (c *wsConn) ID() string         { return c.id }
func (c *wsConn) RemoteAddr() string { return c.addr }

func (c *wsConn) Send(msg []byte) error {
	return c.out.push(msg)
}

// Close stops accepting messages. The write pump flushes what is already
// queued, sends a close frame and then closes the socket. Later calls are
// no-ops.
func (c *wsConn) Close() error {
	c.out.shut()
	return nil
}

func (c *wsConn) done() <-chan struct{} {
	return c.out.done
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *wsConn) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("error setting initial read deadline", "error", err)
	}
	// The peer's close frame is answered by the write pump once pending
	// replies are flushed, not straight from the read loop.
	c.conn.SetCloseHandler(func(int, string) error { return nil })
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Debug("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError maps a read failure to the event that ends the session.
func (c *wsConn) handleReadError(err error) chat.Event {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("frame exceeded maximum size", "limit", maxLineBytes)
		return chat.ErrorEvent(err)
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		c.logger.Debug("client closed websocket", "error", err)
		return chat.EndEvent()
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		return chat.EndEvent()
	}

	return chat.ErrorEvent(err)
}

// readPump forwards frames to events until the socket fails or is closed.
func (c *wsConn) readPump(events chan<- chat.Event) {
	c.setupReadConnection()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.emit(events, c.handleReadError(err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !c.emit(events, chat.LineEvent(string(data))) {
			return
		}
	}
}

func (c *wsConn) emit(events chan<- chat.Event, ev chat.Event) bool {
	select {
	case events <- ev:
		return true
	case <-c.done():
		return false
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.out.shut()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("error closing websocket", "error", err)
		}
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *wsConn) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.out.queue:
		return c.handleMessage(message)
	case <-ticker.C:
		return c.handlePing()
	case <-c.done():
		c.flush()
		c.writeCloseMessage()
		return false
	}
}

// flush sends what was queued before Close as one final frame.
func (c *wsConn) flush() {
	select {
	case message := <-c.out.queue:
		c.handleMessage(message)
	default:
	}
}

// handleMessage writes one outgoing message and returns false if the connection should be closed
func (c *wsConn) handleMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("error setting write deadline", "error", err)
		return false
	}
	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close frame to the client
func (c *wsConn) writeCloseMessage() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("error writing close message", "error", err)
		}
	}
}

// writeTextMessage writes a text message followed by whatever else is already
// queued, in one frame. Every queued message carries its own line ending.
func (c *wsConn) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Warn("error creating writer", "error", err)
		return false
	}

	if !c.writeMessageContent(w, message) {
		return false
	}

	if !c.writeQueuedMessages(w) {
		return false
	}

	return c.closeWriter(w)
}

// writeMessageContent writes the main message content
func (c *wsConn) writeMessageContent(w io.WriteCloser, message []byte) bool {
	if _, err := w.Write(message); err != nil {
		c.logger.Warn("error writing message", "error", err)
		return false
	}
	return true
}

// writeQueuedMessages writes any additional queued messages
func (c *wsConn) writeQueuedMessages(w io.WriteCloser) bool {
	n := len(c.out.queue)
	for i := 0; i < n; i++ {
		if !c.writeMessageContent(w, <-c.out.queue) {
			return false
		}
	}
	return true
}

// closeWriter flushes the frame
func (c *wsConn) closeWriter(w io.WriteCloser) bool {
	if err := w.Close(); err != nil {
		c.logger.Warn("error closing writer", "error", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *wsConn) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("error writing ping message", "error", err)
		return false
	}
	return true
}
