// Package server constructs and starts the relay's TCP and HTTP listeners
// around a shared chat hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Tyrowin/linechat/internal/chat"
)

const metricsNamespace = "linechat"

// Server owns the hub and the transports feeding it.
type Server struct {
	cfg      Config
	hub      *chat.Hub
	logger   *slog.Logger
	metrics  *prometheus.Registry
	upgrader websocket.Upgrader
	newID    func() string
}

// New builds a Server from cfg. A nil logger selects slog.Default().
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := cfg.HubOptions()
	opts.Logger = logger
	opts.Metrics = chat.NewMetrics(reg, metricsNamespace)

	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Server{
		cfg:     cfg,
		hub:     chat.NewHub(opts),
		logger:  logger,
		metrics: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		newID: uuid.NewString,
	}
}

// Hub returns the server's hub for shutdown coordination and tests.
func (s *Server) Hub() *chat.Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// transport is a chat.Conn with its own pump goroutines.
type transport interface {
	chat.Conn
	readPump(events chan<- chat.Event)
	writePump()
}

// serveConn attaches t to the hub and blocks until its session ends.
func (s *Server) serveConn(ctx context.Context, t transport) {
	session := s.hub.Connect(t)

	events := make(chan chat.Event)
	go t.writePump()
	go func() {
		// readPump is the only sender; closing ends Run even when the pump
		// gave up on a closed connection without emitting.
		t.readPump(events)
		close(events)
	}()

	session.Run(ctx, events)
	if err := t.Close(); err != nil {
		s.logger.Debug("error closing connection", "client_id", t.ID(), "error", err)
	}
}

// Run listens on the configured TCP and HTTP addresses and serves until ctx
// is cancelled or a listener fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.cfg.Port, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.ServeTCP(ctx, ln)
	}()

	var httpServer *http.Server
	if s.cfg.HTTPAddr != "" {
		httpServer = CreateServer(s.cfg.HTTPAddr, s.Routes())
		go func() {
			if err := StartServer(httpServer, s.logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()

	if httpServer != nil {
		if err := ShutdownServer(httpServer, s.cfg.ShutdownTimeout, s.logger); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		s.logger.Warn("hub shutdown", "error", err)
	}
	return runErr
}
