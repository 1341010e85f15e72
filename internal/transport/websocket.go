// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "soukou/internal/log"
	"soukou/internal/metrics"
)

// writeTimeout bounds how long one slow client can hold up a broadcast.
const writeTimeout = 250 * time.Millisecond

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Messages are queued and broadcast as JSON to every client on
// /ws; when the queue is full the message is dropped. Prometheus metrics are
// served on /metrics from the same listener.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
	metrics   *metrics.Metrics

	closeMu sync.RWMutex // Guards closed against Send.
	closed  bool
	wg      sync.WaitGroup
}

// NewWebSocketTransport creates a transport for addr (e.g. ":8080") and
// starts its broadcast loop. Call ListenAndServe to accept connections.
func NewWebSocketTransport(addr string, m *metrics.Metrics) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualisers are served from anywhere.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		metrics:   m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	mux.Handle("/metrics", m.Handler())
	wst.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving /ws and /metrics.
func (wst *WebSocketTransport) Handler() http.Handler {
	return wst.server.Handler
}

// ListenAndServe starts the HTTP server in its own goroutine.
func (wst *WebSocketTransport) ListenAndServe() {
	wst.wg.Add(1)
	go func() {
		defer wst.wg.Done()
		applog.Infof("WebSocketTransport: Starting WebSocket server on %s", wst.addr)
		if err := wst.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Clients only listen; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.removeClient(conn)
	}()
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleBroadcasts sends queued messages to all connected clients until the
// queue is closed.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.WriteJSON(data); err != nil {
				applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. It never blocks; a full queue drops data.
func (wst *WebSocketTransport) Send(data any) error {
	wst.closeMu.RLock()
	defer wst.closeMu.RUnlock()
	if wst.closed {
		return errors.New("websocket transport is closed")
	}

	select {
	case wst.broadcast <- data:
	default:
		wst.metrics.Dropped()
	}
	return nil
}

// Close shuts down the server, disconnects every client and waits for the
// transport's goroutines to exit.
func (wst *WebSocketTransport) Close() error {
	wst.closeMu.Lock()
	if wst.closed {
		wst.closeMu.Unlock()
		return nil
	}
	wst.closed = true
	close(wst.broadcast)
	wst.closeMu.Unlock()

	applog.Infof("WebSocketTransport: Closing server")
	err := wst.server.Close()

	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]bool)
	wst.clientsMu.Unlock()

	wst.wg.Wait()
	return err
}

// Ensure WebSocketTransport satisfies the interface.
var _ Transport = (*WebSocketTransport)(nil)
