package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is a connection's position in the relay protocol.
type State int32

const (
	StateConnecting State = iota
	StateNaming
	StateChatting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNaming:
		return "naming"
	case StateChatting:
		return "chatting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	namePrompt         = "\nEnter your name: "
	nameTakenPrompt    = "\nName is already taken. Enter your name: "
	rateLimitedText    = "You are sending messages too quickly. Please wait a moment."
	internalErrorText  = "An error occurred while processing your message."
	nameTooShortFormat = "\nName must be at least %d characters long. Enter your name: "
	nameTooLongFormat  = "\nName must be less than %d characters. Enter your name: "
	tooLongFormat      = "Message too long. Maximum length is %d characters."
)

// Session drives one connection through naming and chatting. All of its
// methods except State are meant to be called from the single goroutine
// running Run.
type Session struct {
	hub    *Hub
	client *Client
	logger *slog.Logger
	state  atomic.Int32

	// tracked is false for sessions opened after Shutdown started; those
	// are not counted in the hub's wait group.
	tracked bool
}

func newSession(h *Hub, c *Client) *Session {
	return &Session{
		hub:    h,
		client: c,
		logger: h.logger.With("client_id", c.conn.ID(), "addr", c.addr),
	}
}

// Client returns the registry record backing the session.
func (s *Session) Client() *Client {
	return s.client
}

// State returns the current protocol state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run consumes transport events until the stream ends, fails, the events
// channel is closed or ctx is cancelled. On return the client has been
// removed and, if it was named, a Leave notice has gone out.
func (s *Session) Run(ctx context.Context, events <-chan Event) {
	reason := "closed"
	defer func() { s.finish(reason) }()

	for {
		select {
		case <-ctx.Done():
			reason = "server shutdown"
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case EventLine:
				s.HandleLine(ctx, ev.Line)
			case EventEnd:
				reason = "end of stream"
				return
			case EventError:
				reason = "transport error"
				s.logger.Warn("connection error", "client", s.client.label(), "error", ev.Err)
				return
			}
			if !s.hub.registry.Contains(s.client) {
				reason = "dropped"
				return
			}
		}
	}
}

func (s *Session) finish(reason string) {
	if s.State() == StateDisconnected {
		return
	}
	s.setState(StateDisconnected)
	s.hub.drop(s.client, reason)
	if s.tracked {
		s.hub.sessions.Done()
	}
}

// HandleLine processes one inbound line according to the current state.
// A panic while handling is logged and answered with an Error reply; the
// connection stays open.
func (s *Session) HandleLine(ctx context.Context, raw string) {
	line := strings.TrimSpace(raw)
	state := s.State()

	_, span := s.hub.tracer.Start(ctx, "chat.line",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("chat.client_id", s.client.conn.ID()),
			attribute.String("chat.state", state.String()),
			attribute.Int("chat.line_length", len(line)),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing message", "client", s.client.label(), "panic", r)
			s.hub.metrics.rejectedMessage(ReasonInternal)
			s.reply(ErrorMessage(internalErrorText))
			span.SetStatus(codes.Error, fmt.Sprint(r))
		}
	}()

	var outcome string
	switch state {
	case StateNaming:
		outcome = s.claimName(line)
	case StateChatting:
		outcome = s.chat(line)
	default:
		return
	}

	if outcome != "" {
		span.SetStatus(codes.Error, outcome)
	}
}

func (s *Session) claimName(name string) string {
	rules := s.hub.registry.Rules()

	err := s.hub.registry.TrySetName(s.client, name)
	switch {
	case err == nil:
	case errors.Is(err, ErrNameTooShort):
		s.hub.metrics.rejectedName(err)
		s.prompt(fmt.Sprintf(nameTooShortFormat, rules.MinLength))
		return "name too short"
	case errors.Is(err, ErrNameTooLong):
		s.hub.metrics.rejectedName(err)
		s.prompt(fmt.Sprintf(nameTooLongFormat, rules.MaxLength))
		return "name too long"
	case errors.Is(err, ErrNameTaken):
		s.hub.metrics.rejectedName(err)
		s.prompt(nameTakenPrompt)
		return "name taken"
	default:
		// Dropped by a failed broadcast between the event and now.
		return err.Error()
	}

	s.setState(StateChatting)
	s.hub.metrics.named()
	s.logger = s.logger.With("name", name)
	s.logger.Info("client named")

	s.reply(Envelope{Kind: KindWelcome, Body: "\nWelcome, " + name + "!"})
	s.hub.Broadcast(KindJoin, name+" has joined the chat.", s.client.conn, "")
	if s.hub.autoHelp {
		s.reply(s.hub.dispatcher.Dispatch("/help", s.commandContext()))
	}
	return ""
}

func (s *Session) chat(line string) string {
	if IsCommand(line) {
		reply := s.hub.dispatcher.Dispatch(line, s.commandContext())
		s.reply(reply)
		if reply.Kind == KindError {
			s.hub.metrics.rejectedMessage(ReasonUnknownCommand)
			return ReasonUnknownCommand
		}
		return ""
	}

	if line == "" {
		return ""
	}

	if s.hub.limiter.Limited(s.client.addr, s.hub.now()) {
		s.logger.Debug("rate limit exceeded; discarding message")
		s.hub.metrics.rejectedMessage(ReasonRateLimited)
		s.reply(ErrorMessage(rateLimitedText))
		return ReasonRateLimited
	}

	if utf8.RuneCountInString(line) > s.hub.maxMessage {
		s.hub.metrics.rejectedMessage(ReasonTooLong)
		s.reply(ErrorMessage(fmt.Sprintf(tooLongFormat, s.hub.maxMessage)))
		return ReasonTooLong
	}

	s.hub.Broadcast(KindChat, line, s.client.conn, s.client.Name())
	return ""
}

func (s *Session) commandContext() CommandContext {
	return CommandContext{Registry: s.hub.registry, Client: s.client}
}

// reply formats env and sends it to this session's client only.
func (s *Session) reply(env Envelope) {
	s.send(env.Format(s.hub.now()))
}

// prompt sends raw text with no formatting.
func (s *Session) prompt(text string) {
	s.send(text)
}

func (s *Session) send(text string) {
	err := s.client.conn.Send([]byte(text))
	if err != nil && !errors.Is(err, ErrConnClosed) {
		s.logger.Warn("error sending message to client", "error", err)
	}
}
