// Package server wires HTTP handlers into a chi router for the relay.
package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes returns the HTTP router: health check, stats, metrics, the
// WebSocket gateway and its test page.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", HealthHandler)
	r.Get("/health", HealthHandler)
	r.Get("/stats", s.StatsHandler)
	r.Get("/test", TestPageHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	// Any method reaches the handler so it can answer non-GET with 405 itself.
	r.HandleFunc("/ws", s.WebSocketHandler)

	return r
}
