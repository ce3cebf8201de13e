package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/opsbridge/relay/core/db"
)

type Config struct {
	Env     string
	Port    string
	OTel    OTelConfig
	Queue   QueueConfig
	Secrets SecretsConfig
	Forward ForwardConfig
	HTTP    HTTPConfig
	DB      db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// QueueConfig describes the Redis stream that buffers relay work between
// the webhook server and the worker.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	DLQStream    string
	Consumer     string
	MaxAttempts  int
	RequeueDelay time.Duration
}

type SecretsConfig struct {
	// BundleEnv names the environment variable holding the JSON secret
	// bundle (same shape as the secret manager's SecretString).
	BundleEnv string
	CacheTTL  time.Duration
}

// ForwardConfig controls how inbound ticket events reach the agent
// webhook: "direct" delivers from the request handler, "queued" puts the
// event on the relay stream for the worker.
type ForwardConfig struct {
	Mode string
}

type HTTPConfig struct {
	// Timeout bounds every outbound call (ITSM, chat response, agent
	// webhook) so a stuck upstream cannot pin a worker.
	Timeout time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

const (
	ForwardModeDirect = "direct"
	ForwardModeQueued = "queued"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the webhook server
//   - .env.worker for the queue worker
//
// Falls back to .env if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("RELAY_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("RELAY_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "itsm-relay"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Queue: QueueConfig{
			RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Stream:       getEnv("REDIS_STREAM", "relay_messages"),
			Group:        getEnv("REDIS_CONSUMER_GROUP", "relay_group"),
			DLQStream:    getEnv("REDIS_DLQ_STREAM", "relay_messages_dlq"),
			Consumer:     getEnv("REDIS_CONSUMER_NAME", string(serviceType)),
			MaxAttempts:  getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			RequeueDelay: getEnvDuration("QUEUE_REQUEUE_DELAY", time.Second),
		},
		Secrets: SecretsConfig{
			BundleEnv: getEnv("SECRET_BUNDLE_ENV", "RELAY_SECRET_BUNDLE"),
			CacheTTL:  getEnvDuration("SECRET_CACHE_TTL", 5*time.Minute),
		},
		Forward: ForwardConfig{
			Mode: getEnv("EVENT_FORWARD_MODE", ForwardModeDirect),
		},
		HTTP: HTTPConfig{
			Timeout: getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		},
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
	}

	if cfg.Forward.Mode != ForwardModeDirect && cfg.Forward.Mode != ForwardModeQueued {
		return Config{}, fmt.Errorf("EVENT_FORWARD_MODE must be %q or %q, got %q",
			ForwardModeDirect, ForwardModeQueued, cfg.Forward.Mode)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// AuditEnabled reports whether the optional Postgres audit log is
// configured. The relay runs fully without it.
func (c Config) AuditEnabled() bool {
	return c.DB.DSN != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
