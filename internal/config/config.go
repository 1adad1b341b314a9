// Package config loads process configuration from the environment.
// A .env file in the working directory is applied first when present.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	AppEnv   string
	LogLevel string
	Port     string

	Storage     string
	DatabaseURL string
	DBMaxConns  int

	RedisAddr          string
	RedisChannelPrefix string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string

	PaymentContextTTL time.Duration
	PaymentGatewayURL string
	PaymentReturnURL  string

	ReaperInterval time.Duration
	OutboxInterval time.Duration
	RefundInterval time.Duration

	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration
}

// IsDevelopment reports whether pretty logging and dev defaults apply.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads configuration. Required values missing from the environment are reported as an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("APP_PORT", "8080"),

		Storage:    getEnv("STORAGE", StoragePostgres),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 25),

		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "marketplace:"),

		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "marketplace.events"),

		PaymentContextTTL: getEnvDuration("PAYMENT_CONTEXT_TTL", 24*time.Hour),
		PaymentGatewayURL: getEnv("PAYMENT_GATEWAY_URL", "https://payments.example.com/pay"),
		PaymentReturnURL:  getEnv("PAYMENT_RETURN_URL", "http://localhost:8080/payments/return"),

		ReaperInterval: getEnvDuration("REAPER_INTERVAL", time.Minute),
		OutboxInterval: getEnvDuration("OUTBOX_INTERVAL", 500*time.Millisecond),
		RefundInterval: getEnvDuration("REFUND_INTERVAL", 30*time.Second),

		IdempotencyEnabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}

	var err error
	if cfg.JWTSecret, err = mustEnv("JWT_SECRET"); err != nil {
		return cfg, err
	}
	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DatabaseURL, err = mustEnv("DATABASE_URL"); err != nil {
			return cfg, err
		}
	case StorageMemory:
	default:
		return cfg, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
