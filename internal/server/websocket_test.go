package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsPeer struct {
	*stream
	conn *websocket.Conn
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func dialWS(t *testing.T, url, origin string) *wsPeer {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", origin)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	p := &wsPeer{conn: conn}
	p.stream = &stream{
		t: t,
		read: func(deadline time.Time) (string, error) {
			if err := conn.SetReadDeadline(deadline); err != nil {
				return "", err
			}
			_, data, err := conn.ReadMessage()
			return string(data), err
		},
	}
	return p
}

func (p *wsPeer) send(line string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

// startGateway serves the HTTP routes and the TCP listener off one Server.
func startGateway(t *testing.T, mutate func(*Config)) (s *Server, wsAddr, tcpAddr string) {
	t.Helper()

	s, tcpAddr = startTCP(t, mutate)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, wsURL(ts.URL), tcpAddr
}

func TestWebSocketChatWithTCPClient(t *testing.T) {
	s, wsAddr, tcpAddr := startGateway(t, nil)

	web := dialWS(t, wsAddr, "http://localhost:8080")
	web.expect("Enter your name: ")
	web.send("Web")
	web.expect("Welcome, Web!")

	term := dialTCP(t, tcpAddr)
	term.join("Term")
	web.expect("] Term has joined the chat.\n")

	term.send("hello from tcp")
	web.expect("] Term: hello from tcp\n")

	web.send("hello from browser")
	term.expect("] Web: hello from browser\n")

	web.send("/users")
	web.expect("System: Connected users: Web, Term\n")

	clients, named := s.Hub().Stats()
	assert.Equal(t, 2, clients)
	assert.Equal(t, 2, named)

	require.NoError(t, web.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	term.expect("] Web has left the chat.\n")
}

func TestWebSocketOriginValidation(t *testing.T) {
	_, wsAddr, _ := startGateway(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"http://localhost:8080"}
	})

	tests := []struct {
		name   string
		origin string
		status int
	}{
		{"allowed origin", "http://localhost:8080", http.StatusSwitchingProtocols},
		{"disallowed origin", "http://evil.example", http.StatusForbidden},
		{"missing origin", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}

			conn, resp, err := websocket.DefaultDialer.Dial(wsAddr, header)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == http.StatusSwitchingProtocols {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			assert.ErrorIs(t, err, websocket.ErrBadHandshake)
		})
	}
}

func TestWebSocketMultipleClients(t *testing.T) {
	s, wsAddr, _ := startGateway(t, nil)

	names := []string{"Ann", "Ben", "Cat"}
	peers := make([]*wsPeer, len(names))
	for i, name := range names {
		peers[i] = dialWS(t, wsAddr, "http://localhost:8080")
		peers[i].expect("Enter your name: ")
		peers[i].send(name)
		peers[i].expect("Welcome, " + name + "!")
	}

	peers[1].send("hi all")
	for _, p := range peers {
		p.expect("] Ben: hi all\n")
	}

	require.NoError(t, s.Hub().Shutdown(ioTimeout))
	for _, p := range peers {
		p.expectClosed()
	}
}

func TestWebSocketSessionOutlivesRequest(t *testing.T) {
	_, wsAddr, _ := startGateway(t, nil)

	web := dialWS(t, wsAddr, "http://localhost:8080")
	web.expect("Enter your name: ")

	// The upgrade handler has long returned by now.
	time.Sleep(100 * time.Millisecond)
	web.send("Late")
	web.expect("Welcome, Late!")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := *NewConfig()
	cfg.Port = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = ioTimeout
	s := New(cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * ioTimeout):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	cfg := *NewConfig()
	cfg.Port = ln.Addr().String()
	cfg.HTTPAddr = ""
	s := New(cfg, discardLogger())

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen tcp")
}

// readUntilClosed collects text frames until the server closes the socket and
// returns them with the error that ended the read.
func (p *wsPeer) readUntilClosed() (string, error) {
	p.t.Helper()

	out := p.pending
	p.pending = ""
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return out, err
		}
		out += string(data)
	}
}

func TestWebSocketShutdownSendsNormalClose(t *testing.T) {
	s, wsAddr, _ := startGateway(t, nil)

	web := dialWS(t, wsAddr, "http://localhost:8080")
	web.expect("Enter your name: ")
	web.send("Web")
	web.expect("Welcome, Web!")

	require.NoError(t, s.Hub().Shutdown(ioTimeout))

	_, err := web.readUntilClosed()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketPeerCloseFlushesReplies(t *testing.T) {
	_, wsAddr, _ := startGateway(t, nil)

	web := dialWS(t, wsAddr, "http://localhost:8080")
	web.send("Web")
	web.send("/users")
	require.NoError(t, web.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	out, err := web.readUntilClosed()
	assert.Contains(t, out, "Welcome, Web!")
	assert.Contains(t, out, "System: Connected users: Web\n")
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
