package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-notify-core/internal/application/device"
	"github.com/go-notify-core/internal/application/publisher"
	"github.com/go-notify-core/internal/config"
	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/transport/http/handler"
	appmiddleware "github.com/go-notify-core/internal/transport/http/middleware"
	"github.com/go-notify-core/internal/transport/ws"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// The read surface works for anonymous sessions; only publishing needs a
	// real identity.
	optionalAuth := appmiddleware.OptionalAuth(deps.JWTProvider)
	strictAuth := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10 — applied to the admin publish endpoint.
	publishRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	deviceSvc := device.NewService(deps.DeviceRepo, deps.PushSender)

	pubDeps := publisher.ServiceDeps{
		Notifications:     deps.NotificationRepo,
		UserNotifications: deps.UserNotificationRepo,
		Devices:           deps.DeviceRepo,
		Broker:            deps.Broker,
	}
	// Explicit nil checks keep typed-nil pointers out of the interfaces.
	if deps.ImageStore != nil {
		pubDeps.Images = deps.ImageStore
	}
	if deps.PushSender != nil {
		pubDeps.Push = deps.PushSender
	}
	publisherSvc := publisher.NewService(pubDeps)

	engines := func(ctx context.Context, userID string) handler.Engine {
		return deps.Manager.ForUser(ctx, userID)
	}

	healthH := handler.NewHealthHandler()
	notifH := handler.NewNotificationHandler(engines)
	deviceH := handler.NewDeviceHandler(deviceSvc, engines)
	publishH := handler.NewPublishHandler(publisherSvc)
	gateway := ws.NewGateway(deps.Manager.ForUser, deps.JWTProvider, cfg.AllowedOrigins)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		// ── Notification surface (guest-friendly) ───────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread-count", notifH.UnreadCount)
			r.Post("/notifications/refresh", notifH.Refresh)
			r.Post("/notifications/read-all", notifH.MarkAllRead)
			r.Post("/notifications/{id}/read", notifH.MarkRead)
			r.Post("/notifications/{id}/click", notifH.MarkClicked)
			r.Delete("/notifications", notifH.ClearAll)

			r.Post("/devices", deviceH.Register)
			r.Get("/devices", deviceH.List)
			r.Delete("/devices/{id}", deviceH.Deactivate)
		})

		// ── Live event stream ────────────────────────────────────────────────
		r.Get("/ws", gateway.ServeHTTP)

		// ── Admin surface ────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(strictAuth)
			r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

			r.With(publishRL.Limit).Post("/notifications/publish", publishH.Publish)
			r.Get("/notifications/{id}", publishH.Detail)
		})
	})

	return r
}
