// Package stream broadcasts engine notifications to UI clients over a
// websocket fan-out hub.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/logger"
	"github.com/analyzemyteam/defsync/pkg/metrics"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 512
)

// Outbound notification types.
const (
	noteMarkerAdded   = "marker_added"
	noteMarkerUpdated = "marker_updated"
	noteMarkerRemoved = "marker_removed"
	noteStatus        = "connection_status"
	noteStats         = "statistics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// notification is the wire frame sent to UI clients, mirroring the
// backend push envelope shape.
type notification struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine notifications out to connected websocket clients.
// It implements the marker listener and the engine observer so it can
// be wired directly into both.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	logger logger.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.Get().Named("stream"),
	}
}

// HandleWS upgrades a request and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.UpdateStreamClients(count)
	h.logger.Debug(r.Context(), "stream client connected", logger.Int("clients", count))

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast sends one notification to every connected client. Clients
// that cannot keep up are dropped.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := json.Marshal(notification{Event: event, Data: data})
	if err != nil {
		h.logger.Warn(context.Background(), "notification encode failed",
			logger.String("event", event),
			logger.Error(err),
		)
		return
	}

	h.mu.Lock()
	var stalled []*client
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	metrics.RecordStreamMessage()
	for _, c := range stalled {
		h.drop(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	metrics.UpdateStreamClients(0)
	return nil
}

// MarkerAdded implements marker.Listener.
func (h *Hub) MarkerAdded(m marker.Marker) {
	h.Broadcast(noteMarkerAdded, m)
}

// MarkerUpdated implements marker.Listener.
func (h *Hub) MarkerUpdated(m marker.Marker) {
	h.Broadcast(noteMarkerUpdated, m)
}

// MarkerRemoved implements marker.Listener.
func (h *Hub) MarkerRemoved(id string) {
	h.Broadcast(noteMarkerRemoved, map[string]string{"marker_id": id})
}

// ConnectionStatusChanged implements the engine observer.
func (h *Hub) ConnectionStatusChanged(s model.ConnectionStatus) {
	h.Broadcast(noteStatus, s)
}

// StatisticsUpdated implements the engine observer.
func (h *Hub) StatisticsUpdated(s stats.Snapshot) {
	h.Broadcast(noteStats, s)
}

// writePump owns all writes on one connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout),
				)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(readLimit)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

// drop unregisters a client and closes its send channel once.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		metrics.UpdateStreamClients(count)
	}
}
