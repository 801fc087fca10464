package domain

import "time"

// Platform constants for device registrations.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Device is a push-delivery registration. At most one active row exists per
// token; re-registering the same token updates the existing row.
type Device struct {
	DeviceID   string    `json:"id" dynamodbav:"device_id"`
	Token      string    `json:"token" dynamodbav:"token"`
	UserID     string    `json:"user_id" dynamodbav:"user_id"`
	Platform   string    `json:"platform" dynamodbav:"platform"`
	Model      *string   `json:"model,omitempty" dynamodbav:"model"`
	AppVersion *string   `json:"app_version,omitempty" dynamodbav:"app_version"`
	// EndpointARN is set when the push provider accepted the token; nil means
	// this device is reachable only through realtime channels.
	EndpointARN *string   `json:"-" dynamodbav:"endpoint_arn"`
	Active      bool      `json:"active" dynamodbav:"active"`
	LastSeenAt  time.Time `json:"last_seen" dynamodbav:"last_seen_at"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

// RegisterDeviceRequest registers or refreshes a device. Token may be empty:
// environments without a real push token get a generated fallback id so the
// rest of the pipeline still works.
type RegisterDeviceRequest struct {
	Token      *string `json:"token"`
	Platform   string  `json:"platform" validate:"required,oneof=ios android"`
	Model      *string `json:"model"`
	AppVersion *string `json:"app_version"`
}
