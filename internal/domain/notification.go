package domain

import "time"

// Notification type constants.
const (
	TypeInfo        = "info"
	TypeSuccess     = "success"
	TypeWarning     = "warning"
	TypeError       = "error"
	TypePromotional = "promotional"
)

// Action kind constants for notification tap actions.
const (
	ActionScreen   = "screen"
	ActionProduct  = "product"
	ActionCategory = "category"
	ActionURL      = "url"
)

// Action describes what the UI should do when a notification is tapped.
// The core only carries it; interpretation belongs to the UI layer.
type Action struct {
	Kind  string `json:"kind" dynamodbav:"kind"`
	Value string `json:"value" dynamodbav:"value"`
}

// Notification is the immutable broadcast content record. Once created it is
// never mutated; per-user state lives on UserNotification.
type Notification struct {
	NotificationID string     `json:"id" dynamodbav:"notification_id"`
	Title          string     `json:"title" dynamodbav:"title"`
	Message        string     `json:"message" dynamodbav:"message"`
	Type           string     `json:"type" dynamodbav:"type"`
	ImageURL       *string    `json:"image_url,omitempty" dynamodbav:"image_url"`
	Action         *Action    `json:"action,omitempty" dynamodbav:"action"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" dynamodbav:"expires_at"`
	CreatedAt      time.Time  `json:"created" dynamodbav:"created_at"`
}

// Expired reports whether the notification carries an expiry in the past.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// UserNotification is the per-recipient projection of a Notification. The
// timestamps are set-once: once non-nil they are never reverted to nil.
type UserNotification struct {
	UserNotificationID string       `json:"id" dynamodbav:"user_notification_id"`
	NotificationID     string       `json:"notification_id" dynamodbav:"notification_id"`
	UserID             string       `json:"user_id" dynamodbav:"user_id"`
	Notification       Notification `json:"notification" dynamodbav:"notification"`
	DeliveredAt        *time.Time   `json:"delivered_at,omitempty" dynamodbav:"delivered_at"`
	ReadAt             *time.Time   `json:"read_at,omitempty" dynamodbav:"read_at"`
	ClickedAt          *time.Time   `json:"clicked_at,omitempty" dynamodbav:"clicked_at"`
	DismissedAt        *time.Time   `json:"dismissed_at,omitempty" dynamodbav:"dismissed_at"`
	CreatedAt          time.Time    `json:"created" dynamodbav:"created_at"`
}

// Unread reports whether the notification has not been read yet.
func (un *UserNotification) Unread() bool { return un.ReadAt == nil }

// CreateNotificationRequest is the broadcast-publish payload.
type CreateNotificationRequest struct {
	Title       string  `json:"title" validate:"required"`
	Message     string  `json:"message" validate:"required"`
	Type        string  `json:"type" validate:"required,oneof=info success warning error promotional"`
	ImageBase64 *string `json:"image_base64"` // optional, uploaded to object storage
	ImageName   *string `json:"image_name"`
	Action      *Action `json:"action"`
	ExpiresAt   *string `json:"expires_at"` // RFC3339, optional
	// TargetUsers empty means broadcast to all users.
	TargetUsers []string `json:"target_users"`
}
