package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the dashboard API.
type Config struct {
	Port        int
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	ProfilePath string

	LogLevel  string
	LogFormat string

	JWTSecret   string
	BearerToken string
	CORSOrigin  string

	ModelPath         string
	SageMakerEndpoint string
	AWSRegion         string

	PollEnabled  bool
	PollInterval time.Duration
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:        8080,
		StoreDriver: "pgx",
		SQLitePath:  "sensebox.db",
		ProfilePath: "configs/ffm.yaml",
		LogLevel:    "info",
		LogFormat:   "json",
		CORSOrigin:  "*",
		AWSRegion:   "eu-central-1",
		PollEnabled: true,
	}

	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.StoreDriver = strings.ToLower(driver)
	}
	switch cfg.StoreDriver {
	case "pgx":
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required")
		}
	case "sqlite":
		if path := os.Getenv("SQLITE_PATH"); path != "" {
			cfg.SQLitePath = path
		}
	default:
		return cfg, fmt.Errorf("invalid STORE_DRIVER: %s", cfg.StoreDriver)
	}

	if path := os.Getenv("DASHBOARD_PROFILE"); path != "" {
		cfg.ProfilePath = path
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	cfg.JWTSecret = os.Getenv("API_JWT_SECRET")
	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")
	if origin := os.Getenv("CORS_ALLOW_ORIGIN"); origin != "" {
		cfg.CORSOrigin = origin
	}

	cfg.ModelPath = os.Getenv("FORECAST_MODEL_PATH")
	cfg.SageMakerEndpoint = os.Getenv("SAGEMAKER_ENDPOINT_NAME")
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if enabledStr := os.Getenv("POLL_ENABLED"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid POLL_ENABLED: %s", enabledStr)
		}
		cfg.PollEnabled = enabled
	}
	if intervalStr := os.Getenv("POLL_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil || interval <= 0 {
			return cfg, fmt.Errorf("invalid POLL_INTERVAL: %s", intervalStr)
		}
		cfg.PollInterval = interval
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// StoreDSN returns the connection string for the selected driver.
func (c Config) StoreDSN() string {
	if c.StoreDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}
