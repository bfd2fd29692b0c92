// Package server defines the outbound queue shared by both transports and
// utility helpers reused across client and listener logic.
package server

import (
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/Tyrowin/linechat/internal/chat"
)

// maxLineBytes bounds one inbound WebSocket frame and how much of one TCP
// line is kept. It is far above the chat length limit, so a cut-short line is
// still answered with the too-long Error reply.
const maxLineBytes = 64 * 1024

// outbox is a connection's bounded send queue. push never blocks: a full
// queue is reported to the hub, which drops the slow peer. After shut, push
// is refused but whatever is already queued stays there for the write pump
// to flush.
type outbox struct {
	mu     sync.Mutex
	queue  chan []byte
	closed bool
	done   chan struct{}
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &outbox{
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
}

func (o *outbox) push(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return chat.ErrConnClosed
	}

	select {
	case o.queue <- msg:
		return nil
	default:
		return chat.ErrSendBufferFull
	}
}

// shut marks the outbox closed and reports whether this call did it.
func (o *outbox) shut() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	o.closed = true
	close(o.done)
	return true
}

// drain empties the queue without blocking. Called after shut, when nothing
// new can arrive.
func (o *outbox) drain() [][]byte {
	var msgs [][]byte
	for {
		select {
		case msg := <-o.queue:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
