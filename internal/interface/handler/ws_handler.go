package handler

import (
	"net/http"
	"time"

	"rental-notify-service/internal/usecase"
	"rental-notify-service/pkg/logger"
	"rental-notify-service/pkg/notifier"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const wsReadLimit = 512

// WSHandler streams an owner's live notification list over a websocket
type WSHandler struct {
	hub      *notifier.Hub
	sessions *usecase.SessionManager
	feed     *usecase.Feed
	upgrader websocket.Upgrader
	pongWait time.Duration
	logger   logger.Logger
}

// NewWSHandler creates a websocket handler. An empty allowedOrigins accepts any origin.
// heartbeat is the interval the hub pings connections at.
func NewWSHandler(hub *notifier.Hub, sessions *usecase.SessionManager, feed *usecase.Feed, allowedOrigins []string, heartbeat time.Duration, logger logger.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		sessions: sessions,
		feed:     feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		pongWait: notifier.PongWait(heartbeat),
		logger:   logger,
	}
}

// HandleNotifications upgrades HTTP -> WebSocket and keeps the owner's session
// alive for as long as the connection is open
func (h *WSHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", "ownerID", ownerID, "error", err)
		return
	}

	if !h.sessions.Acquire(ownerID) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer h.sessions.Release(ownerID)

	c := h.hub.Add(ownerID, conn)
	defer h.hub.Remove(c)

	// A fresh session publishes once its first load completes; an existing one
	// already has a list to hand over.
	if notifications, ok := h.feed.Snapshot(ownerID); ok {
		if err := c.WriteJSON(usecase.NewFeedMessage(ownerID, notifications)); err != nil {
			return
		}
	}

	// Reader loop: listen for pongs and client messages
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		c.Touch()
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		c.Touch()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
