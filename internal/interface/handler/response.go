package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/pkg/logger"
)

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON writes a success envelope
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Status: "success",
		Data:   data,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Error writes an error envelope
func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Status:  "error",
		Message: msg,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrInvalidStatus), errors.Is(err, entity.ErrEmptyIDs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides internal failure details from the client and logs them
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
