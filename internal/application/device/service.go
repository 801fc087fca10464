package device

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/pkg/id"
)

type Service interface {
	// Register upserts a device by push token and returns the stored row.
	Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error)
	List(ctx context.Context, userID string) ([]domain.Device, error)
	Deactivate(ctx context.Context, deviceID string) error
}

type deviceStore interface {
	Put(ctx context.Context, d *domain.Device) error
	Get(ctx context.Context, deviceID string) (*domain.Device, error)
	GetByToken(ctx context.Context, token string) (*domain.Device, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
	Update(ctx context.Context, deviceID string, updates map[string]interface{}) error
	Deactivate(ctx context.Context, deviceID string) error
}

// tokenRegistrar exchanges a raw push token for a provider endpoint. Nil when
// push delivery is not configured.
type tokenRegistrar interface {
	RegisterToken(ctx context.Context, token string) (string, error)
}

type service struct {
	repo deviceStore
	push tokenRegistrar
}

func NewService(repo deviceStore, push tokenRegistrar) Service {
	return &service{repo: repo, push: push}
}

// Register upserts by token: re-registering a known token refreshes the
// existing row instead of creating a duplicate. A missing token gets a
// generated fallback id so environments without push credentials still
// produce a working registration. Endpoint creation failure is non-fatal —
// the device stays realtime-only.
func (s *service) Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error) {
	token := ""
	if req.Token != nil {
		token = *req.Token
	}
	if token == "" {
		token = "local-" + id.New()
	}

	now := time.Now().UTC()

	existing, err := s.repo.GetByToken(ctx, token)
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"user_id":      userID,
			"platform":     req.Platform,
			"active":       true,
			"last_seen_at": now.Format(time.RFC3339),
		}
		if req.Model != nil {
			updates["model"] = *req.Model
		}
		if req.AppVersion != nil {
			updates["app_version"] = *req.AppVersion
		}
		if existing.EndpointARN == nil {
			if arn := s.registerToken(ctx, token); arn != nil {
				updates["endpoint_arn"] = *arn
				existing.EndpointARN = arn
			}
		}
		if err := s.repo.Update(ctx, existing.DeviceID, updates); err != nil {
			return nil, err
		}
		existing.UserID = userID
		existing.Platform = req.Platform
		existing.Model = req.Model
		existing.AppVersion = req.AppVersion
		existing.Active = true
		existing.LastSeenAt = now
		existing.UpdatedAt = now
		return existing, nil

	case errors.Is(err, domain.ErrNotFound):
		d := &domain.Device{
			DeviceID:    id.New(),
			Token:       token,
			UserID:      userID,
			Platform:    req.Platform,
			Model:       req.Model,
			AppVersion:  req.AppVersion,
			EndpointARN: s.registerToken(ctx, token),
			Active:      true,
			LastSeenAt:  now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Put(ctx, d); err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, err
	}
}

func (s *service) registerToken(ctx context.Context, token string) *string {
	if s.push == nil {
		return nil
	}
	arn, err := s.push.RegisterToken(ctx, token)
	if err != nil {
		slog.Warn("could not create push endpoint, device stays realtime-only", "err", err)
		return nil
	}
	return &arn
}

func (s *service) List(ctx context.Context, userID string) ([]domain.Device, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

// Deactivate marks the device inactive. The existence check keeps the
// update from materializing a phantom row for an unknown id.
func (s *service) Deactivate(ctx context.Context, deviceID string) error {
	if _, err := s.repo.Get(ctx, deviceID); err != nil {
		return err
	}
	return s.repo.Deactivate(ctx, deviceID)
}
