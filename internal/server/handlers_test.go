package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat/chattest"
)

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	cfg := *NewConfig()
	cfg.HTTPAddr = ""
	cfg.AutoHelp = false
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, discardLogger())
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"GET root", http.MethodGet, "/"},
		{"GET health", http.MethodGet, "/health"},
	}

	s := newTestServer(t, nil)
	router := s.Routes()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "Chat relay is running!", rr.Body.String())
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
		})
	}
}

func TestHealthRouteRejectsPost(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/health", http.NoBody)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestWebSocketHandlerMethodValidation(t *testing.T) {
	s := newTestServer(t, nil)
	router := s.Routes()

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/ws", http.NoBody)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			assert.Contains(t, rr.Body.String(), "WebSocket endpoint only accepts GET requests")
		})
	}
}

func TestWebSocketHandlerRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, s.Hub().Registry().Len())
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t, nil)
	hub := s.Hub()

	named := chattest.NewConn()
	hub.Connect(named).HandleLine(context.Background(), "Alice")
	hub.Connect(chattest.NewConn())

	req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got statsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, statsResponse{Clients: 2, Named: 1}, got)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, nil)
	s.Hub().Connect(chattest.NewConn()).HandleLine(context.Background(), "Alice")

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "linechat_connections 1")
	assert.Contains(t, body, "linechat_named_clients 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestTestPageHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rr := httptest.NewRecorder()

	TestPageHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html", rr.Header().Get("Content-Type"))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "<!DOCTYPE html>"))
	assert.Contains(t, string(body), "'/ws'")
}

func TestCreateServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := CreateServer(":0", handler)

	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, handler, srv.Handler)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}
