package redisinfra

import (
	"context"
	"fmt"

	"github.com/go-notify-core/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client and verifies connectivity with a ping.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
