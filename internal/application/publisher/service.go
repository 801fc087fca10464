package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/pkg/id"
)

// Service is the admin-facing broadcast pipeline: persist the notification,
// materialize per-user rows for targeted sends, publish the realtime event,
// and fan out provider pushes to registered devices.
type Service interface {
	Publish(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
}

type userNotificationStore interface {
	Upsert(ctx context.Context, un *domain.UserNotification) error
}

type deviceStore interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
}

type broadcaster interface {
	Publish(ctx context.Context, topic, event string, payload []byte) error
}

type imageStore interface {
	UploadBase64(ctx context.Context, name, b64Data string) (string, error)
}

type pushSender interface {
	Push(ctx context.Context, endpointARN, platform string, n *domain.Notification) error
}

type ServiceDeps struct {
	Notifications     notificationStore
	UserNotifications userNotificationStore
	Devices           deviceStore
	Broker            broadcaster
	Images            imageStore // nil when object storage is not configured
	Push              pushSender // nil when push is not configured
}

type service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	return &service{deps: deps}
}

func (s *service) Publish(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	n := &domain.Notification{
		NotificationID: id.New(),
		Title:          req.Title,
		Message:        req.Message,
		Type:           req.Type,
		Action:         req.Action,
		CreatedAt:      time.Now().UTC(),
	}

	if req.ExpiresAt != nil {
		exp, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("invalid expires_at: %w", domain.ErrBadRequest)
		}
		n.ExpiresAt = &exp
	}

	if req.ImageBase64 != nil {
		if s.deps.Images == nil {
			return nil, fmt.Errorf("image upload not available: %w", domain.ErrBadRequest)
		}
		name := n.NotificationID + ".jpg"
		if req.ImageName != nil && *req.ImageName != "" {
			name = *req.ImageName
		}
		url, err := s.deps.Images.UploadBase64(ctx, name, *req.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("upload notification image: %w", err)
		}
		n.ImageURL = &url
	}

	if err := s.deps.Notifications.Put(ctx, n); err != nil {
		return nil, err
	}

	// Targeted sends get their per-user rows materialized up front, so the
	// notification is waiting on the next refresh even for users who are
	// offline right now. Row failures do not abort the broadcast.
	for _, uid := range req.TargetUsers {
		un := &domain.UserNotification{
			NotificationID: n.NotificationID,
			UserID:         uid,
			Notification:   *n,
			CreatedAt:      n.CreatedAt,
		}
		if err := s.deps.UserNotifications.Upsert(ctx, un); err != nil {
			slog.Warn("could not materialize notification row", "user_id", uid, "notification_id", n.NotificationID, "err", err)
		}
	}

	if err := s.broadcast(ctx, n, req.TargetUsers); err != nil {
		return nil, err
	}

	s.fanOutPush(ctx, n, req.TargetUsers)
	return n, nil
}

// Get returns the canonical notification record.
func (s *service) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	return s.deps.Notifications.Get(ctx, notificationID)
}

// broadcast publishes the realtime event: one message on the all-users topic
// for a broadcast, or one per user topic for a targeted send.
func (s *service) broadcast(ctx context.Context, n *domain.Notification, targets []string) error {
	payload, err := json.Marshal(domain.NotificationEvent{Notification: *n, TargetUsers: targets})
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	if len(targets) == 0 {
		if err := s.deps.Broker.Publish(ctx, domain.TopicAllUsers, domain.EventNewNotification, payload); err != nil {
			return fmt.Errorf("publish broadcast: %w", err)
		}
		return nil
	}

	var firstErr error
	for _, uid := range targets {
		if err := s.deps.Broker.Publish(ctx, domain.TopicUser(uid), domain.EventNewNotification, payload); err != nil {
			slog.Warn("could not publish to user topic", "user_id", uid, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// fanOutPush sends provider pushes to every registered endpoint of the
// targeted users. Broadcast sends skip this: online sessions present their
// own alert on receipt, and enumerating the whole device table per broadcast
// is not worth it. Push failures are logged, never propagated.
func (s *service) fanOutPush(ctx context.Context, n *domain.Notification, targets []string) {
	if s.deps.Push == nil || len(targets) == 0 {
		return
	}
	for _, uid := range targets {
		devices, err := s.deps.Devices.ListActiveByUser(ctx, uid)
		if err != nil {
			slog.Warn("could not list devices for push fan-out", "user_id", uid, "err", err)
			continue
		}
		for _, d := range devices {
			if d.EndpointARN == nil {
				continue
			}
			if err := s.deps.Push.Push(ctx, *d.EndpointARN, d.Platform, n); err != nil {
				slog.Warn("push delivery failed", "device_id", d.DeviceID, "notification_id", n.NotificationID, "err", err)
			}
		}
	}
}
