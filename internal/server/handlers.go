// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, stats, and the built-in test page.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// WebSocketHandler handles WebSocket upgrade requests and attaches the
// connection to the hub as another line client. It validates that the request
// uses the GET method and that the origin is allowed.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSConn(s.newID(), conn, r.RemoteAddr, s.cfg.SendBuffer, s.logger)

	// The request context ends when this handler returns; the session must
	// outlive it.
	go s.serveConn(context.WithoutCancel(r.Context()), client)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

type statsResponse struct {
	Clients int `json:"clients"`
	Named   int `json:"named"`
}

// StatsHandler reports how many clients are connected and how many of them
// have claimed a name.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	clients, named := s.hub.Stats()
	writeJSON(w, http.StatusOK, statsResponse{Clients: clients, Named: named}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("error writing JSON response", "error", err)
	}
}

// TestPageHandler serves an HTML page that speaks the line protocol over the
// WebSocket gateway: the first line sent is the name, later lines are chat
// messages or commands.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #output {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            white-space: pre-wrap;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="lineInput" placeholder="Name first, then messages or /help" disabled>
        <button id="sendButton" onclick="sendLine()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div id="output"></div>

    <script>
        let ws = null;
        const output = document.getElementById('output');
        const lineInput = document.getElementById('lineInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function append(text) {
            if (text === '\x1bc\n' || text.endsWith('System: \x1bc\n')) {
                output.textContent = '';
                return;
            }
            output.textContent += text;
            output.scrollTop = output.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            lineInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => updateStatus(true);
            ws.onmessage = (event) => append(event.data);
            ws.onclose = () => { append('\n-- connection closed --\n'); updateStatus(false); ws = null; };
            ws.onerror = () => updateStatus(false);
        }

        function sendLine() {
            const line = lineInput.value.trim();
            if (line && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(line);
                lineInput.value = '';
            }
        }

        lineInput.addEventListener('keypress', (e) => {
            if (e.key === 'Enter') {
                sendLine();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Default().Warn("error writing HTML response", "error", err)
	}
}
