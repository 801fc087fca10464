package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-notify-core/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// NotificationsEnvelope wraps notification list responses. UnreadCount covers
// the whole inbox, not just the returned page.
type NotificationsEnvelope struct {
	Data        []domain.UserNotification `json:"data"`
	UnreadCount int                       `json:"unread_count"`
	Error       string                    `json:"error,omitempty"`
}

// UnreadCountEnvelope wraps the badge-count response.
type UnreadCountEnvelope struct {
	UnreadCount int `json:"unread_count"`
}

// DevicesEnvelope wraps device list responses.
type DevicesEnvelope struct {
	Data []domain.Device `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
