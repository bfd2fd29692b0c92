package chat

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of server-to-client message kinds.
type Kind uint8

const (
	KindWelcome Kind = iota + 1
	KindJoin
	KindLeave
	KindChat
	KindError
	KindSystem
)

// TimestampLayout renders a local time of day, e.g. "3:04:05 PM".
const TimestampLayout = "3:04:05 PM"

// SelfLabel replaces the sender name on the sender's own echo when enabled.
const SelfLabel = "You"

func (k Kind) String() string {
	switch k {
	case KindWelcome:
		return "WELCOME"
	case KindJoin:
		return "JOIN"
	case KindLeave:
		return "LEAVE"
	case KindChat:
		return "CHAT"
	case KindError:
		return "ERROR"
	case KindSystem:
		return "SYSTEM"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Envelope is a transient server-to-client message before formatting.
type Envelope struct {
	Kind   Kind
	Body   string
	Sender string
}

// SystemMessage builds a System envelope.
func SystemMessage(body string) Envelope {
	return Envelope{Kind: KindSystem, Body: body}
}

// ErrorMessage builds an Error envelope.
func ErrorMessage(body string) Envelope {
	return Envelope{Kind: KindError, Body: body}
}

// Format renders the envelope at the given instant.
func (e Envelope) Format(at time.Time) string {
	return Format(e.Kind, e.Body, e.Sender, at)
}

// Format maps a message to its canonical display string. Every result ends in
// exactly one newline appended by the formatter. Format panics on a Kind
// outside the declared set.
func Format(kind Kind, body, sender string, at time.Time) string {
	ts := at.Format(TimestampLayout)

	var b strings.Builder
	switch kind {
	case KindWelcome:
		b.WriteString(body)
	case KindJoin, KindLeave:
		fmt.Fprintf(&b, "[%s] %s", ts, body)
	case KindChat:
		fmt.Fprintf(&b, "[%s] %s: %s", ts, sender, body)
	case KindError:
		fmt.Fprintf(&b, "[%s] Error: %s", ts, body)
	case KindSystem:
		fmt.Fprintf(&b, "[%s] System: %s", ts, body)
	default:
		panic(fmt.Sprintf("chat: unknown message kind %s", kind))
	}
	b.WriteByte('\n')
	return b.String()
}
