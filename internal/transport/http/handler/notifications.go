package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/transport/http/middleware"
)

// Engine is the per-user notification surface the handlers drive. Satisfied
// by *notify.Service.
type Engine interface {
	Load(ctx context.Context, limit, offset int) []domain.UserNotification
	Refresh(ctx context.Context)
	UnreadCount() int
	Err() error
	MarkRead(ctx context.Context, notificationID string)
	MarkAllRead(ctx context.Context)
	MarkClicked(ctx context.Context, notificationID string)
	ClearAll(ctx context.Context)
	AttachDevice(d *domain.Device)
}

// EngineProvider resolves the engine for the request's user, initializing it
// on first use.
type EngineProvider func(ctx context.Context, userID string) Engine

// NotificationHandler serves the per-user notification surface.
type NotificationHandler struct {
	engine EngineProvider
}

func NewNotificationHandler(engine EngineProvider) *NotificationHandler {
	return &NotificationHandler{engine: engine}
}

func (h *NotificationHandler) engineFor(r *http.Request) Engine {
	userID := ""
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		userID = claims.UserID
	}
	return h.engine(r.Context(), userID)
}

// List returns a page of notifications, newest first. Served from the remote
// store when reachable, otherwise from the local cache; the envelope carries
// the degradation error in that case.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	eng := h.engineFor(r)
	data := eng.Load(r.Context(), limit, offset)
	if data == nil {
		data = []domain.UserNotification{}
	}

	env := NotificationsEnvelope{Data: data, UnreadCount: eng.UnreadCount()}
	if err := eng.Err(); err != nil {
		env.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	eng := h.engineFor(r)
	writeJSON(w, http.StatusOK, UnreadCountEnvelope{UnreadCount: eng.UnreadCount()})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	eng := h.engineFor(r)
	eng.MarkRead(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	eng := h.engineFor(r)
	eng.MarkAllRead(r.Context())
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}

func (h *NotificationHandler) MarkClicked(w http.ResponseWriter, r *http.Request) {
	eng := h.engineFor(r)
	eng.MarkClicked(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}

func (h *NotificationHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	eng := h.engineFor(r)
	eng.ClearAll(r.Context())
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}

func (h *NotificationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	eng := h.engineFor(r)
	eng.Refresh(r.Context())
	if err := eng.Err(); err != nil {
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "refreshed from cache", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}
