package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsSQLite(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("PORT", "")
	t.Setenv("API_PORT", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("POLL_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, "/tmp/x.db", cfg.StoreDSN())
	assert.True(t, cfg.PollEnabled)
	assert.Zero(t, cfg.PollInterval)
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "pgx")
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.EqualError(t, err, "DATABASE_URL is required")

	t.Setenv("DATABASE_URL", "postgres://localhost/sensebox")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/sensebox", cfg.StoreDSN())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("PORT", "9000")
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("POLL_ENABLED", "false")
	t.Setenv("DASHBOARD_PROFILE", "configs/hanoi.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.PollInterval)
	assert.False(t, cfg.PollEnabled)
	assert.Equal(t, "configs/hanoi.yaml", cfg.ProfilePath)
}

func TestLoadInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"driver":   {"STORE_DRIVER", "oracle"},
		"port":     {"PORT", "abc"},
		"interval": {"POLL_INTERVAL", "-1m"},
		"enabled":  {"POLL_ENABLED", "maybe"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", "sqlite")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
