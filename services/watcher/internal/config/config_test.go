package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("WATCHER_REQUEST_TIMEOUT", "")
	t.Setenv("DRY_RUN", "TRUE")
	t.Setenv("METRICS_FILE", " /var/lib/node_exporter/watcher.prom ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sensebox.db", cfg.StoreDSN())
	assert.Equal(t, defaultProfilePath, cfg.ProfilePath)
	assert.Equal(t, defaultRequestTimeout, cfg.RequestTimeout)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "/var/lib/node_exporter/watcher.prom", cfg.MetricsFile)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("STORE_DRIVER", "pgx")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DRY_RUN", "")
	_, err := Load()
	assert.EqualError(t, err, "DATABASE_URL is required")

	t.Setenv("DATABASE_URL", "postgres://localhost/sensebox")
	t.Setenv("WATCHER_REQUEST_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("WATCHER_REQUEST_TIMEOUT", "45s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.DryRun)
}
