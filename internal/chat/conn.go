package chat

import "errors"

var (
	// ErrConnClosed is returned by Conn.Send once the connection is closed.
	ErrConnClosed = errors.New("chat: connection closed")
	// ErrSendBufferFull is returned by Conn.Send when the outbound queue of a
	// slow peer is full. The hub treats it as a write failure.
	ErrSendBufferFull = errors.New("chat: send buffer full")
)

// Conn is the registry's reference to a client's bidirectional stream. The
// registry does not own the transport; it only enqueues bytes and closes it.
//
// Send must not block on network I/O: implementations queue the payload and
// write it from their own goroutine so a slow peer never delays the others.
type Conn interface {
	// ID is a unique, stable identifier for the connection.
	ID() string
	// RemoteAddr is the peer address, used as the rate-limit identity key.
	RemoteAddr() string
	// Send queues one complete message for delivery.
	Send(msg []byte) error
	// Close tears down the transport. It must be safe to call more than once.
	Close() error
}

// EventType tells a session what happened on its transport.
type EventType int

const (
	// EventLine carries one inbound line of text.
	EventLine EventType = iota
	// EventEnd means the peer closed the stream cleanly.
	EventEnd
	// EventError means the transport failed or was reset.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventLine:
		return "line"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent by a transport's read loop to the connection's session.
type Event struct {
	Type EventType
	Line string
	Err  error
}

// LineEvent wraps an inbound line.
func LineEvent(line string) Event {
	return Event{Type: EventLine, Line: line}
}

// EndEvent reports a clean end of stream.
func EndEvent() Event {
	return Event{Type: EventEnd}
}

// ErrorEvent reports a transport failure.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Err: err}
}
