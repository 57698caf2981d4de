package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultProfilePath    = "configs/ffm.yaml"
	defaultRequestTimeout = 2 * time.Minute
)

// Config holds runtime configuration for the watcher job.
type Config struct {
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	ProfilePath    string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	DryRun         bool
	MetricsFile    string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		StoreDriver: "pgx",
		SQLitePath:  "sensebox.db",
		ProfilePath: defaultProfilePath,
		LogLevel:    "info",
		LogFormat:   "console",
	}

	if v := strings.TrimSpace(os.Getenv("STORE_DRIVER")); v != "" {
		cfg.StoreDriver = strings.ToLower(v)
	}
	switch cfg.StoreDriver {
	case "pgx":
		cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required")
		}
	case "sqlite":
		if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
			cfg.SQLitePath = v
		}
	default:
		return cfg, fmt.Errorf("invalid STORE_DRIVER: %s", cfg.StoreDriver)
	}

	if v := strings.TrimSpace(os.Getenv("DASHBOARD_PROFILE")); v != "" {
		cfg.ProfilePath = v
	}

	cfg.RequestTimeout = defaultRequestTimeout
	if v := strings.TrimSpace(os.Getenv("WATCHER_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WATCHER_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}

	cfg.MetricsFile = strings.TrimSpace(os.Getenv("METRICS_FILE"))

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	return cfg, nil
}

// StoreDSN returns the connection string for the selected driver.
func (c Config) StoreDSN() string {
	if c.StoreDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}
