package handler

import (
	"net/http"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/usecase"
	"rental-notify-service/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// BookingHandler serves owner booking reads and status commands
type BookingHandler struct {
	bookings *usecase.BookingService
	logger   logger.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings *usecase.BookingService, logger logger.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// List returns the owner's bookings. Query: status=all|pending|accepted|overdue|cancelled|completed
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	status, err := usecase.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views, err := h.bookings.List(r.Context(), ownerID, status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, views)
}

// Get returns one booking
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.bookings.Get(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// UpdateStatus applies an owner status command
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := entity.ParseBookingStatus(req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.bookings.UpdateStatus(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "bookingID"), status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// History returns the booking's status changes, oldest first
func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	events, err := h.bookings.History(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, events)
}
