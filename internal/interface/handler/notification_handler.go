package handler

import (
	"net/http"

	"rental-notify-service/internal/usecase"
	"rental-notify-service/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// NotificationHandler serves an owner's notification list and read-state commands
type NotificationHandler struct {
	readState *usecase.ReadStateManager
	sessions  *usecase.SessionManager
	logger    logger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(readState *usecase.ReadStateManager, sessions *usecase.SessionManager, logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		readState: readState,
		sessions:  sessions,
		logger:    logger,
	}
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// StartSession starts reconciliation for the owner
func (h *NotificationHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if !h.sessions.Acquire(ownerID) {
		Error(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	JSON(w, http.StatusAccepted, map[string]interface{}{"ownerId": ownerID, "active": true})
}

// StopSession releases the session taken by StartSession
func (h *NotificationHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	h.sessions.Release(ownerID)
	JSON(w, http.StatusOK, map[string]interface{}{"ownerId": ownerID, "active": h.sessions.Active(ownerID)})
}

// List returns the owner's notifications. Query: filter=all|unread|read, q=<search>
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	filter, err := usecase.ParseNotificationFilter(r.URL.Query().Get("filter"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.readState.List(r.Context(), ownerID, filter, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

// MarkRead marks the given ids read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.readState.MarkRead(r.Context(), ownerID, req.IDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// MarkUnread marks the given ids unread
func (h *NotificationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.readState.MarkUnread(r.Context(), ownerID, req.IDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// MarkAllRead marks every unread notification of the owner read
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	count, err := h.readState.MarkAllRead(r.Context(), ownerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"updated": count})
}

// Delete deletes the given ids
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deleted, err := h.readState.DeleteMany(r.Context(), ownerID, req.IDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
