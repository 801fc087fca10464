package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SNSPlatformAppARN is the SNS platform application used to create
	// per-device push endpoints. Empty disables push delivery (the pipeline
	// stays functional over realtime channels only).
	SNSPlatformAppARN string
	SNSRegion         string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	// CacheDir is where the local fallback store keeps its files.
	CacheDir string
	// CacheLimit bounds the rolling notification cache.
	CacheLimit int
	// DedupLimit bounds the persisted seen-notification-id set.
	DedupLimit int

	// ResubscribeBase is the initial delay before re-opening dropped
	// realtime channels; each attempt doubles it up to ResubscribeMax.
	ResubscribeBase     time.Duration
	ResubscribeMax      time.Duration
	ResubscribeAttempts int

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Notifications     string
	UserNotifications string
	Devices           string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Notifications:     getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			UserNotifications: getEnv("DYNAMO_TABLE_USER_NOTIFICATIONS", "user_notifications"),
			Devices:           getEnv("DYNAMO_TABLE_DEVICES", "user_devices"),
		},
		S3BucketName: getEnv("S3_BUCKET_NAME", "notify-images"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SNSPlatformAppARN: getEnv("SNS_PLATFORM_APP_ARN", ""),
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		CacheDir:   getEnv("CACHE_DIR", "./.cache"),
		CacheLimit: getEnvInt("CACHE_LIMIT", 100),
		DedupLimit: getEnvInt("DEDUP_LIMIT", 500),

		ResubscribeBase:     time.Duration(getEnvInt("RESUBSCRIBE_BASE_SECONDS", 5)) * time.Second,
		ResubscribeMax:      time.Duration(getEnvInt("RESUBSCRIBE_MAX_SECONDS", 120)) * time.Second,
		ResubscribeAttempts: getEnvInt("RESUBSCRIBE_ATTEMPTS", 8),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
