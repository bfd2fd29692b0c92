package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Tyrowin/linechat/internal/chat"

// Options configures a Hub. Zero values select the defaults.
type Options struct {
	Names            NameRules
	RateLimit        RateLimitConfig
	MaxMessageLength int

	// EchoSelfLabel renders the sender's own echo as "You: ..." instead of
	// repeating the broadcast text.
	EchoSelfLabel bool

	// AutoHelp sends the /help reply right after a successful name claim.
	AutoHelp bool

	Dispatcher *Dispatcher
	Logger     *slog.Logger
	Metrics    *Metrics
	Tracer     trace.Tracer
	Now        func() time.Time
}

// Hub owns the registry and rate limiter shared by every connection and fans
// formatted messages out to live clients. It holds no transport of its own.
type Hub struct {
	registry   *Registry
	limiter    *RateLimiter
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	now        func() time.Time
	maxMessage int
	echoSelf   bool
	autoHelp   bool

	// mu orders sessions.Add against the Wait in Shutdown.
	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// NewHub creates a Hub ready to accept connections.
func NewHub(opts Options) *Hub {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 500
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Hub{
		registry:   NewRegistry(opts.Names),
		limiter:    NewRateLimiter(opts.RateLimit),
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		now:        opts.Now,
		maxMessage: opts.MaxMessageLength,
		echoSelf:   opts.EchoSelfLabel,
		autoHelp:   opts.AutoHelp,
	}
}

// Registry exposes the hub's registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Limiter exposes the hub's rate limiter.
func (h *Hub) Limiter() *RateLimiter {
	return h.limiter
}

// Connect registers conn, sends it the name prompt and returns the session
// that must be driven with Run.
func (h *Hub) Connect(conn Conn) *Session {
	client := h.registry.Register(conn)
	h.metrics.connected()

	h.mu.Lock()
	closing := h.closing
	if !closing {
		h.sessions.Add(1)
	}
	h.mu.Unlock()

	s := newSession(h, client)
	s.tracked = !closing
	s.logger.Info("client connected", "clients", h.registry.Len())
	s.prompt(namePrompt)
	s.setState(StateNaming)

	if closing {
		_ = conn.Close()
	}
	return s
}

// Broadcast formats one message and delivers it to every registered client
// except exclude. Chat messages are also echoed to exclude, the sender.
// A failed delivery drops that recipient; it never stops the fan-out or
// surfaces to the caller.
func (h *Hub) Broadcast(kind Kind, body string, exclude Conn, sender string) {
	now := h.now()
	msg := []byte(Format(kind, body, sender, now))
	h.metrics.message(kind)

	var failed []*Client
	for _, c := range h.registry.Snapshot() {
		if exclude != nil && c.conn == exclude {
			continue
		}
		if !h.deliver(c, msg) {
			failed = append(failed, c)
		}
	}

	if kind == KindChat && exclude != nil {
		echo := msg
		if h.echoSelf {
			echo = []byte(Format(kind, body, SelfLabel, now))
		}
		if err := exclude.Send(echo); err != nil && !errors.Is(err, ErrConnClosed) {
			h.logger.Warn("echo to sender failed", "client_id", exclude.ID(), "name", sender, "error", err)
		}
	}

	for _, c := range failed {
		h.drop(c, "write failure")
	}
}

// deliver reports false when the recipient must be dropped. A recipient that
// is already closed is skipped silently; its own session cleans it up.
func (h *Hub) deliver(c *Client, msg []byte) bool {
	err := c.conn.Send(msg)
	if err == nil || errors.Is(err, ErrConnClosed) {
		return true
	}
	h.metrics.writeFailed()
	h.logger.Warn("broadcast delivery failed", "client_id", c.conn.ID(), "client", c.label(), "error", err)
	return false
}

// drop removes c, closes its transport and announces its departure if it had
// a name. Dropping an already removed client does nothing.
func (h *Hub) drop(c *Client, reason string) {
	present, named := h.registry.remove(c)
	if !present {
		return
	}
	h.limiter.Forget(c.addr)
	h.metrics.disconnected(named)

	if err := c.conn.Close(); err != nil && !errors.Is(err, ErrConnClosed) {
		h.logger.Debug("closing dropped connection", "client_id", c.conn.ID(), "error", err)
	}
	h.logger.Info("client disconnected", "client_id", c.conn.ID(), "client", c.label(), "reason", reason, "clients", h.registry.Len())

	if named {
		h.Broadcast(KindLeave, c.Name()+" has left the chat.", c.conn, "")
	}
}

// Stats returns the number of live connections and how many of them are named.
func (h *Hub) Stats() (clients, named int) {
	return h.registry.Len(), len(h.registry.Names())
}

// Shutdown closes every live connection and waits for their sessions to
// finish, or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.logger.Info("shutting down all client connections")

	clients := h.registry.Snapshot()
	for _, c := range clients {
		if err := c.conn.Close(); err != nil && !errors.Is(err, ErrConnClosed) {
			h.logger.Debug("closing client connection", "client_id", c.conn.ID(), "error", err)
		}
	}
	h.logger.Info("closed client connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
