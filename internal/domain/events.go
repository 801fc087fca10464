package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventNewNotification is the realtime event name both broadcast channels use.
const EventNewNotification = "new_notification"

// TopicAllUsers is the broadcast topic every client subscribes to.
const TopicAllUsers = "notifications:all"

// TopicUser returns the per-user broadcast topic.
func TopicUser(userID string) string {
	return "notifications:user:" + userID
}

// NotificationEvent is the canonical inbound realtime payload after
// normalization. TargetUsers empty means the event addresses everyone.
type NotificationEvent struct {
	Notification Notification `json:"notification"`
	TargetUsers  []string     `json:"target_users"`
}

// Addresses reports whether the event targets the given user. An empty
// target list addresses all users.
func (e *NotificationEvent) Addresses(userID string) bool {
	if len(e.TargetUsers) == 0 {
		return true
	}
	for _, id := range e.TargetUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// eventEnvelope accepts both wire shapes the backend has been observed to
// send: the notification fields flattened at the top level, or nested under
// a "notification" key. Exactly one canonical NotificationEvent comes out.
type eventEnvelope struct {
	Notification *Notification `json:"notification"`
	TargetUsers  []string      `json:"target_users"`

	// Flat shape fields.
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	ImageURL  *string    `json:"image_url"`
	Action    *Action    `json:"action"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt *time.Time `json:"created"`
}

// ParseEventPayload normalizes a raw realtime payload into a
// NotificationEvent, or returns an explicit error when the payload matches
// neither known shape or is missing the notification id.
func ParseEventPayload(payload []byte) (*NotificationEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}

	var n Notification
	switch {
	case env.Notification != nil:
		n = *env.Notification
	case env.ID != "":
		n = Notification{
			NotificationID: env.ID,
			Title:          env.Title,
			Message:        env.Message,
			Type:           env.Type,
			ImageURL:       env.ImageURL,
			Action:         env.Action,
			ExpiresAt:      env.ExpiresAt,
		}
		if env.CreatedAt != nil {
			n.CreatedAt = *env.CreatedAt
		}
	default:
		return nil, fmt.Errorf("event payload has no notification: %w", ErrBadRequest)
	}

	if n.NotificationID == "" {
		return nil, fmt.Errorf("event notification missing id: %w", ErrBadRequest)
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return &NotificationEvent{Notification: n, TargetUsers: env.TargetUsers}, nil
}
