package profile

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "configs")
}

func TestLoadShippedProfiles(t *testing.T) {
	ffm, err := Load(filepath.Join(configsDir(t), "ffm.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "5d6d5269953683001ae46adc", ffm.BoxID)
	assert.Equal(t, "Europe/Berlin", ffm.Location().String())
	assert.Equal(t, 48*time.Hour, ffm.DefaultRange)
	assert.Equal(t, 4*time.Minute, ffm.PollInterval)
	require.True(t, ffm.Forecast.Enabled())
	assert.Equal(t, "5d6d5269953683001ae46ae1", ffm.Forecast.SensorID)
	assert.Equal(t, 8*time.Hour, ffm.Forecast.Lookback)
	assert.Equal(t, "°C", ffm.Forecast.Unit)

	hanoi, err := Load(filepath.Join(configsDir(t), "hanoi.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "6252afcfd7e732001bb6b9f7", hanoi.BoxID)
	assert.Equal(t, 72*time.Hour, hanoi.DefaultRange)
	assert.False(t, hanoi.Forecast.Enabled())
}

func TestParseDefaults(t *testing.T) {
	p, err := Parse([]byte("box_id: abc\nforecast:\n  sensor_id: s1\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", p.Name)
	assert.Equal(t, "abc", p.Title)
	assert.Equal(t, time.UTC, p.Location())
	assert.Equal(t, "https://api.opensensemap.org", p.APIBaseURL)
	assert.Equal(t, 8*time.Hour, p.Forecast.Lookback)
	assert.Equal(t, "Temperatur", p.Forecast.Title)
	assert.Equal(t, "Temperaturentwicklung", p.Forecast.Headline)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"missing box":  "name: x\n",
		"bad timezone": "box_id: abc\ntimezone: Mars/Olympus\n",
		"bad range":    "box_id: abc\ndefault_range: -1h\n",
		"bad yaml":     "box_id: [\n",
	}
	for name, body := range cases {
		_, err := Parse([]byte(body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
