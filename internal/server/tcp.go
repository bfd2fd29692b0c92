package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/Tyrowin/linechat/internal/chat"
)

// lineConn adapts a raw TCP stream to chat.Conn: newline-delimited input,
// queued writes drained by writePump.
type lineConn struct {
	id     string
	conn   net.Conn
	addr   string
	out    *outbox
	logger *slog.Logger
}

func newLineConn(id string, conn net.Conn, sendBuffer int, logger *slog.Logger) *lineConn {
	addr := conn.RemoteAddr().String()
	return &lineConn{
		id:     id,
		conn:   conn,
		addr:   addr,
		out:    newOutbox(sendBuffer),
		logger: logger.With("client_id", id, "addr", addr, "transport", "tcp"),
	}
}

func (c *lineConn) ID() string         { return c.id }
func (c *lineConn) RemoteAddr() string { return c.addr }

func (c *lineConn) Send(msg []byte) error {
	return c.out.push(msg)
}

// Close stops accepting messages. The write pump flushes what is already
// queued and then closes the socket. Later calls are no-ops.
func (c *lineConn) Close() error {
	c.out.shut()
	return nil
}

func (c *lineConn) done() <-chan struct{} {
	return c.out.done
}

func (c *lineConn) readPump(events chan<- chat.Event) {
	r := bufio.NewReader(c.conn)

	for {
		line, err := readLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
				c.emit(events, chat.EndEvent())
			} else {
				c.emit(events, chat.ErrorEvent(err))
			}
			return
		}
		if !c.emit(events, chat.LineEvent(line)) {
			return
		}
	}
}

// readLine returns the next line without its line ending. Bytes past
// maxLineBytes are discarded, so an oversized line still arrives, cut short,
// and the session answers it like any other line that is too long. A final
// line without a newline is returned before io.EOF.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if room := maxLineBytes - len(line); room > 0 {
			line = append(line, chunk[:min(len(chunk), room)]...)
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return trimLineEnding(line), nil
		case err != nil:
			return "", err
		}
		return trimLineEnding(line), nil
	}
}

func trimLineEnding(line []byte) string {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return string(bytes.TrimSuffix(line, []byte("\r")))
}

func (c *lineConn) emit(events chan<- chat.Event, ev chat.Event) bool {
	select {
	case events <- ev:
		return true
	case <-c.done():
		return false
	}
}

// writePump writes queued messages in order. Once the connection is closed it
// flushes the rest of the queue, then closes the socket, which ends the read
// side and so the session.
func (c *lineConn) writePump() {
	defer func() {
		c.out.shut()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("error closing connection", "error", err)
		}
	}()

	for {
		select {
		case msg := <-c.out.queue:
			if !c.write(msg, time.Now().Add(writeWait)) {
				return
			}
		case <-c.done():
			c.flush()
			return
		}
	}
}

// flush writes what was queued before Close under one shared deadline.
func (c *lineConn) flush() {
	deadline := time.Now().Add(writeWait)
	for _, msg := range c.out.drain() {
		if !c.write(msg, deadline) {
			return
		}
	}
}

func (c *lineConn) write(msg []byte, deadline time.Time) bool {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.logger.Debug("error setting write deadline", "error", err)
		return false
	}
	if _, err := c.conn.Write(msg); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing message", "error", err)
		}
		return false
	}
	return true
}

// ServeTCP accepts line clients on ln until ctx is cancelled or ln is closed.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("accepting TCP clients", "addr", ln.Addr().String())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Back off on transient failures such as running out of file
			// descriptors.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			s.logger.Warn("accept error", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		delay = 0

		lc := newLineConn(s.newID(), conn, s.cfg.SendBuffer, s.logger)
		go s.serveConn(ctx, lc)
	}
}
