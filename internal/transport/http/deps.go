package http

import (
	"github.com/go-notify-core/internal/application/notify"
	"github.com/go-notify-core/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-notify-core/internal/infrastructure/jwt"
	redisinfra "github.com/go-notify-core/internal/infrastructure/redis"
	s3infra "github.com/go-notify-core/internal/infrastructure/s3"
	"github.com/go-notify-core/internal/infrastructure/sns"
)

// Deps holds all infrastructure dependencies for the router. JWTProvider,
// ImageStore and PushSender may be nil; the router degrades those surfaces
// instead of failing.
type Deps struct {
	NotificationRepo     *dynamo.NotificationRepo
	UserNotificationRepo *dynamo.UserNotificationRepo
	DeviceRepo           *dynamo.DeviceRepo
	Broker               *redisinfra.Broker
	Manager              *notify.Manager
	ImageStore           *s3infra.ImageStore
	PushSender           sns.PushSender
	JWTProvider          *jwtinfra.Provider
}
