// Package chattest provides an in-memory chat.Conn for tests.
package chattest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Tyrowin/linechat/internal/chat"
)

// Conn records every message sent to it. It can be told to fail sends to
// simulate a broken peer.
type Conn struct {
	id   string
	addr string

	mu      sync.Mutex
	sent    []string
	closed  bool
	failErr error
}

var seq struct {
	sync.Mutex
	n int
}

// NewConn returns an open fake connection with a unique id and address.
func NewConn() *Conn {
	seq.Lock()
	seq.n++
	n := seq.n
	seq.Unlock()

	return &Conn{
		id:   fmt.Sprintf("conn-%d", n),
		addr: fmt.Sprintf("127.0.0.1:%d", 40000+n),
	}
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.addr }

// Send records msg, or returns the configured failure.
func (c *Conn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return chat.ErrConnClosed
	}
	if c.failErr != nil {
		return c.failErr
	}
	c.sent = append(c.sent, string(msg))
	return nil
}

// Close marks the connection closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// FailWith makes every later Send return err.
func (c *Conn) FailWith(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of everything sent so far.
func (c *Conn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Last returns the most recent message, or "".
func (c *Conn) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

// Count returns how many sent messages contain substr.
func (c *Conn) Count(substr string) int {
	n := 0
	for _, msg := range c.Sent() {
		if strings.Contains(msg, substr) {
			n++
		}
	}
	return n
}

// Reset forgets recorded messages.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}
