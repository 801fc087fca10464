package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-notify-core/internal/application/device"
	"github.com/go-notify-core/internal/application/notify"
	"github.com/go-notify-core/internal/config"
	"github.com/go-notify-core/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-notify-core/internal/infrastructure/jwt"
	"github.com/go-notify-core/internal/infrastructure/kvstore"
	redisinfra "github.com/go-notify-core/internal/infrastructure/redis"
	s3infra "github.com/go-notify-core/internal/infrastructure/s3"
	"github.com/go-notify-core/internal/infrastructure/sns"
	transporthttp "github.com/go-notify-core/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	userNotificationRepo := dynamo.NewUserNotificationRepo(dynamoClient, cfg.DynamoTables.UserNotifications)
	deviceRepo := dynamo.NewDeviceRepo(dynamoClient, cfg.DynamoTables.Devices)

	// Redis is the realtime backbone; without it nothing works.
	redisClient, err := redisinfra.NewClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("redis unavailable: %v", err)
	}
	broker := redisinfra.NewBroker(redisClient)

	// JWT provider (optional — anonymous sessions work without it).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available, all sessions are guests: %v", err)
	}

	// SNS push sender (optional — realtime-only delivery without it).
	var pushSender sns.PushSender
	if sender, err := sns.NewSender(cfg); err == nil {
		pushSender = sender
	} else {
		log.Printf("WARN: push delivery not available: %v", err)
	}

	// S3 image store.
	s3Client := s3infra.NewClient(cfg)
	imageStore := s3infra.NewImageStore(s3Client, cfg.S3BucketName)

	// Local fallback store for caches and dedup state.
	kv, err := kvstore.Open(cfg.CacheDir)
	if err != nil {
		log.Fatalf("cannot open cache dir %s: %v", cfg.CacheDir, err)
	}

	notifyDeps := notify.ServiceDeps{
		Realtime:            broker,
		Store:               userNotificationRepo,
		Devices:             device.NewService(deviceRepo, pushSender),
		KV:                  kv,
		CacheLimit:          cfg.CacheLimit,
		DedupLimit:          cfg.DedupLimit,
		ResubscribeBase:     cfg.ResubscribeBase,
		ResubscribeMax:      cfg.ResubscribeMax,
		ResubscribeAttempts: cfg.ResubscribeAttempts,
	}
	if pushSender != nil {
		notifyDeps.Push = pushSender
	}
	manager := notify.NewManager(notifyDeps)
	defer manager.StopAll()

	deps := &transporthttp.Deps{
		NotificationRepo:     notificationRepo,
		UserNotificationRepo: userNotificationRepo,
		DeviceRepo:           deviceRepo,
		Broker:               broker,
		Manager:              manager,
		ImageStore:           imageStore,
		PushSender:           pushSender,
		JWTProvider:          jwtProvider,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
