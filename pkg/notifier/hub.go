// Package notifier fans messages out to owners' websocket connections.
package notifier

import (
	"context"
	"sync"
	"time"

	"rental-notify-service/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
)

// PongWait is how long a reader should wait for traffic on a connection the
// hub pings every interval. It outlasts the two silent intervals Heartbeat
// tolerates, so the hub drops a dead peer first.
func PongWait(interval time.Duration) time.Duration {
	if interval <= 0 {
		return defaultPongWait
	}
	return 2*interval + writeWait
}

// Connection wraps websocket.Conn with metadata
type Connection struct {
	Conn    *websocket.Conn
	OwnerID string

	writeMu  sync.Mutex
	seenMu   sync.Mutex
	lastSeen time.Time
}

// Touch records activity from the client
func (c *Connection) Touch() {
	c.seenMu.Lock()
	c.lastSeen = time.Now()
	c.seenMu.Unlock()
}

// LastSeen returns the time of the last client activity
func (c *Connection) LastSeen() time.Time {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	return c.lastSeen
}

// WriteJSON serializes writers; gorilla connections allow one at a time
func (c *Connection) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(v)
}

func (c *Connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
}

// Hub tracks websocket connections per owner
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{} // ownerID -> set of connections
	logger      logger.Logger
}

// NewHub creates an empty hub
func NewHub(logger logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*Connection]struct{}),
		logger:      logger,
	}
}

// Add registers a connection for an owner
func (h *Hub) Add(ownerID string, conn *websocket.Conn) *Connection {
	c := &Connection{Conn: conn, OwnerID: ownerID, lastSeen: time.Now()}

	h.mu.Lock()
	if _, ok := h.connections[ownerID]; !ok {
		h.connections[ownerID] = make(map[*Connection]struct{})
	}
	h.connections[ownerID][c] = struct{}{}
	total := len(h.connections[ownerID])
	h.mu.Unlock()

	h.logger.Info("WS connected", "ownerID", ownerID, "total", total)
	return c
}

// Remove closes and forgets a connection. Removing twice is harmless.
func (h *Hub) Remove(c *Connection) {
	h.mu.Lock()
	conns, ok := h.connections[c.OwnerID]
	if ok {
		if _, present := conns[c]; !present {
			ok = false
		}
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.connections, c.OwnerID)
		}
	}
	h.mu.Unlock()

	_ = c.Conn.Close()
	if ok {
		h.logger.Info("WS disconnected", "ownerID", c.OwnerID)
	}
}

// Count returns the number of open connections of an owner
func (h *Hub) Count(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[ownerID])
}

// Send writes a JSON message to all connections of an owner.
// Connections that fail the write are dropped.
func (h *Hub) Send(ownerID string, message interface{}) {
	for _, c := range h.snapshot(ownerID) {
		if err := c.WriteJSON(message); err != nil {
			h.logger.Warn("Failed WS send", "ownerID", ownerID, "error", err)
			h.Remove(c)
		}
	}
}

// Heartbeat pings every connection each interval and drops those silent for
// more than two intervals. It returns when ctx ends.
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range h.snapshot("") {
				if time.Since(c.LastSeen()) > 2*interval {
					h.Remove(c)
					continue
				}
				if err := c.ping(); err != nil {
					h.Remove(c)
				}
			}
		}
	}
}

// CloseAll closes every connection
func (h *Hub) CloseAll() {
	for _, c := range h.snapshot("") {
		h.Remove(c)
	}
}

// snapshot copies the connection set of ownerID, or of every owner when empty,
// so writes happen outside the lock
func (h *Hub) snapshot(ownerID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Connection
	for owner, conns := range h.connections {
		if ownerID != "" && owner != ownerID {
			continue
		}
		for c := range conns {
			out = append(out, c)
		}
	}
	return out
}
