package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wonny/gridflow/internal/orchestrator"
	"github.com/wonny/gridflow/pkg/logger"
)

// ProgressHub fans job progress events out to websocket subscribers. It
// satisfies the orchestrator's notifier contract; Notify never blocks the
// pipeline, slow subscribers drop events instead.
type ProgressHub struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewProgressHub creates a progress hub.
func NewProgressHub(log *logger.Logger) *ProgressHub {
	return &ProgressHub{
		logger: log.WithField("module", "progress"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Notify broadcasts a progress event to every subscriber.
func (h *ProgressHub) Notify(event orchestrator.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("Progress event marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			// Subscriber is not keeping up; drop the event for it.
			_ = conn
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	send := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	h.logger.WithField("remote", r.RemoteAddr).Debug("Progress subscriber connected")

	go h.writeLoop(conn, send)
	h.readLoop(conn)
}

// writeLoop pushes queued events to one subscriber.
func (h *ProgressHub) writeLoop(conn *websocket.Conn, send chan []byte) {
	for payload := range send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(conn)
			return
		}
	}
}

// readLoop consumes control frames and detects disconnects.
func (h *ProgressHub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

// drop removes a subscriber and closes its connection.
func (h *ProgressHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	send, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()

	if ok {
		_ = conn.Close()
		h.logger.Debug("Progress subscriber disconnected")
	}
}
