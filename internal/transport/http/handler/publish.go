package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/pkg/validate"
)

// PublisherService is the broadcast surface the admin endpoints need.
type PublisherService interface {
	Publish(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
}

// PublishHandler handles the admin broadcast endpoint.
type PublishHandler struct {
	svc PublisherService
}

func NewPublishHandler(svc PublisherService) *PublishHandler {
	return &PublishHandler{svc: svc}
}

func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.svc.Publish(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// Detail returns the canonical record behind a published notification.
func (h *PublishHandler) Detail(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
