// internal/web/websocket.go - live alert push to browser clients
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"watchtower/internal/database"
	"watchtower/internal/metrics"
)

const writeWait = 10 * time.Second

// Hub tracks connected websocket clients and pushes newly created
// alerts to all of them. It satisfies the monitoring notifier contract,
// so the alert manager treats the dashboard like any other channel.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *metrics.Collector

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(collector *metrics.Collector) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: collector,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Handle upgrades the request and keeps the connection registered until
// the peer goes away. Clients only receive; inbound frames are drained
// and discarded.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.RecordWebSocketConnection(1)
	}
	logrus.WithField("remote", conn.RemoteAddr().String()).Debug("WebSocket client connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.RecordWebSocketConnection(-1)
		}
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type alertEvent struct {
	Type  string          `json:"type"`
	Alert *database.Alert `json:"alert"`
}

// Notify broadcasts the alert to every connected client. Write errors
// drop the offending client and never propagate; the dashboard is a
// best-effort channel.
func (h *Hub) Notify(ctx context.Context, alert *database.Alert) error {
	event := alertEvent{Type: "alert", Alert: alert}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			logrus.WithError(err).Debug("Dropping websocket client after write error")
			delete(h.clients, conn)
			conn.Close()
			if h.metrics != nil {
				h.metrics.RecordWebSocketConnection(-1)
			}
		}
	}
	return nil
}
