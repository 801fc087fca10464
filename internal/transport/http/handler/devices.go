package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/pkg/validate"
	"github.com/go-notify-core/internal/transport/http/middleware"
)

// DeviceService is the device surface the handlers need.
type DeviceService interface {
	Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error)
	List(ctx context.Context, userID string) ([]domain.Device, error)
	Deactivate(ctx context.Context, deviceID string) error
}

// DeviceHandler handles device registration endpoints.
type DeviceHandler struct {
	svc    DeviceService
	engine EngineProvider // nil-safe: attach is skipped when absent
}

func NewDeviceHandler(svc DeviceService, engine EngineProvider) *DeviceHandler {
	return &DeviceHandler{svc: svc, engine: engine}
}

func userIDFrom(r *http.Request) string {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return domain.GuestUserID
}

// Register upserts the caller's device by push token and points their live
// notification session at it.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := userIDFrom(r)
	d, err := h.svc.Register(r.Context(), userID, req)
	if err != nil {
		httpError(w, err)
		return
	}

	if h.engine != nil {
		h.engine(r.Context(), userID).AttachDevice(d)
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.List(r.Context(), userIDFrom(r))
	if err != nil {
		httpError(w, err)
		return
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	writeJSON(w, http.StatusOK, DevicesEnvelope{Data: devices})
}

func (h *DeviceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}
