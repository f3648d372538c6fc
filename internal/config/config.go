package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	TelegramToken     string
	DatabaseURL       string
	Storage           string
	MigrationsPath    string
	LogLevel          string
	PrometheusPort    string
	Port              string
	RedisURL          string
	ApprovalThreshold decimal.Decimal
	ReconcileInterval time.Duration
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		Storage:        getEnvOrDefault("STORAGE", StoragePostgres),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		PrometheusPort: getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		Port:           getEnvOrDefault("PORT", "8080"),
	}

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}

	threshold, err := decimal.NewFromString(getEnvOrDefault("APPROVAL_THRESHOLD", "0.51"))
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVAL_THRESHOLD: %w", err)
	}
	if !threshold.IsPositive() || threshold.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("APPROVAL_THRESHOLD must be in (0, 1], got %s", threshold)
	}
	cfg.ApprovalThreshold = threshold

	interval, err := time.ParseDuration(getEnvOrDefault("RECONCILE_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", interval)
	}
	cfg.ReconcileInterval = interval

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
