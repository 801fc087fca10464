package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-core/internal/domain"
	jwtinfra "github.com/go-notify-core/internal/infrastructure/jwt"
	"github.com/go-notify-core/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisherSvc struct{ mock.Mock }

func (m *mockPublisherSvc) Publish(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	args := m.Called(ctx, req)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPublisherSvc) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

// publishRouter mounts the handler behind strict auth plus the admin role
// check, the way the real router does.
func publishRouter(p *jwtinfra.Provider, h *PublishHandler) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(p))
		r.Use(middleware.RequireRole(domain.RoleAdmin))
		r.Post("/notifications/publish", h.Publish)
		r.Get("/notifications/{id}", h.Detail)
	})
	return r
}

func publishBody(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(domain.CreateNotificationRequest{
		Title:   "Flash sale",
		Message: "20% off everything",
		Type:    domain.TypePromotional,
	})
	require.NoError(t, err)
	return b
}

func TestPublish_AdminSucceeds(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPublisherSvc{}
	svc.On("Publish", mock.Anything, mock.Anything).
		Return(&domain.Notification{NotificationID: "n1", Title: "Flash sale"}, nil)

	h := NewPublishHandler(svc)

	token, err := p.Sign("admin-1", "dev1", domain.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/notifications/publish", bytes.NewReader(publishBody(t)))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var n domain.Notification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &n))
	assert.Equal(t, "n1", n.NotificationID)
}

func TestPublish_NonAdminForbidden(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPublisherSvc{}
	h := NewPublishHandler(svc)

	token, err := p.Sign("u1", "dev1", domain.RoleUser)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/notifications/publish", bytes.NewReader(publishBody(t)))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	svc.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPublish_NoTokenUnauthorized(t *testing.T) {
	p := newTestJWTProvider(t)
	h := NewPublishHandler(&mockPublisherSvc{})

	req := httptest.NewRequest(http.MethodPost, "/notifications/publish", bytes.NewReader(publishBody(t)))
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPublish_MissingTitleRejected(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPublisherSvc{}
	h := NewPublishHandler(svc)

	body, _ := json.Marshal(map[string]string{"message": "no title", "type": "info"})
	token, err := p.Sign("admin-1", "dev1", domain.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/notifications/publish", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPublish_InvalidTypeRejected(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPublisherSvc{}
	h := NewPublishHandler(svc)

	body, _ := json.Marshal(map[string]string{"title": "t", "message": "m", "type": "urgent"})
	token, err := p.Sign("admin-1", "dev1", domain.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/notifications/publish", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPublishDetail_ReturnsNotification(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPublisherSvc{}
	svc.On("Get", mock.Anything, "n1").
		Return(&domain.Notification{NotificationID: "n1", Title: "Flash sale"}, nil)
	h := NewPublishHandler(svc)

	token, err := p.Sign("admin-1", "dev1", domain.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/notifications/n1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var n domain.Notification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &n))
	assert.Equal(t, "Flash sale", n.Title)
}

func TestPublishDetail_NotFoundMapped(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPublisherSvc{}
	svc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)
	h := NewPublishHandler(svc)

	token, err := p.Sign("admin-1", "dev1", domain.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/notifications/missing", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPublish_ServiceBadRequestMapped(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockPublisherSvc{}
	svc.On("Publish", mock.Anything, mock.Anything).Return(nil, domain.ErrBadRequest)
	h := NewPublishHandler(svc)

	token, err := p.Sign("admin-1", "dev1", domain.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/notifications/publish", bytes.NewReader(publishBody(t)))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	publishRouter(p, h).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
