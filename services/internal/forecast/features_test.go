package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

func risingSeries(n int, start time.Time) []models.Point {
	out := make([]models.Point, n)
	for i := range out {
		out[i] = models.Point{Timestamp: start.Add(time.Duration(i) * 3 * time.Minute), Value: float64(i)}
	}
	return out
}

func TestEncodeHour(t *testing.T) {
	sin, cos := EncodeHour(0)
	assert.InDelta(t, 0, sin, 1e-12)
	assert.InDelta(t, 1, cos, 1e-12)

	sin, cos = EncodeHour(6)
	assert.InDelta(t, 1, sin, 1e-12)
	assert.InDelta(t, 0, cos, 1e-12)

	sin, cos = EncodeHour(12)
	assert.InDelta(t, 0, sin, 1e-12)
	assert.InDelta(t, -1, cos, 1e-12)
}

func TestEncodeMonth(t *testing.T) {
	sin, cos := EncodeMonth(time.January)
	assert.InDelta(t, 0.5, sin, 1e-12)
	assert.InDelta(t, math.Sqrt(3)/2, cos, 1e-12)

	sin, cos = EncodeMonth(time.December)
	assert.InDelta(t, 0, sin, 1e-12)
	assert.InDelta(t, 1, cos, 1e-12)
}

func TestPrepareForTrainingRowCount(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := NewPreprocessor(30)

	cases := map[int]int{10: 0, 49: 0, 50: 1, 51: 2, 100: 51}
	for n, want := range cases {
		assert.Len(t, p.PrepareForTraining(risingSeries(n, start)), want, "n=%d", n)
	}
}

func TestPrepareForTrainingValues(t *testing.T) {
	start := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	rows := NewPreprocessor(30).PrepareForTraining(risingSeries(50, start))
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, start.Add(19*3*time.Minute), r.Timestamp)
	assert.Equal(t, 19.0, r.Measurement)
	assert.Equal(t, 19.0, r.Lag1)
	assert.Equal(t, 14.0, r.Lag6)
	assert.Equal(t, 0.0, r.Lag20)
	assert.InDelta(t, 9.5, r.RollingMean20, 1e-12)
	// sample std of 0..19
	assert.InDelta(t, math.Sqrt(35), r.RollingStd20, 1e-12)
	require.Len(t, r.Targets, 30)
	assert.Equal(t, 20.0, r.Targets[0])
	assert.Equal(t, 49.0, r.Targets[29])
}

func TestPrepareForTrainingSortsInput(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	series := risingSeries(50, start)
	for i, j := 0, len(series)-1; i < j; i, j = i+1, j-1 {
		series[i], series[j] = series[j], series[i]
	}
	rows := NewPreprocessor(30).PrepareForTraining(series)
	require.Len(t, rows, 1)
	assert.Equal(t, 19.0, rows[0].Measurement)
}

func TestPrepareLatestForPrediction(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPreprocessor(30)

	_, err := p.PrepareLatestForPrediction(risingSeries(19, start))
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = p.PrepareLatestForPrediction(nil)
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	row, err := p.PrepareLatestForPrediction(risingSeries(20, start))
	require.NoError(t, err)
	assert.Equal(t, 19.0, row.Measurement)
	assert.Equal(t, 19.0, row.Lag1)
	assert.Equal(t, 14.0, row.Lag6)
	assert.Equal(t, 0.0, row.Lag20)
	assert.InDelta(t, 0.5, row.SinMonth, 1e-12)
	assert.Len(t, row.Vector(), len(FeatureColumns))
}

func TestPredictionMatchesLastTrainingRow(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	series := risingSeries(60, start)
	p := NewPreprocessor(30)

	rows := p.PrepareForTraining(series)
	require.NotEmpty(t, rows)
	last := rows[len(rows)-1]

	// The last training row sits 30 rows before the end of the series.
	row, err := p.PrepareLatestForPrediction(series[:len(series)-30])
	require.NoError(t, err)
	assert.Equal(t, last.FeatureRow, row)
}

func TestPrepareLatestRejectsNonFinite(t *testing.T) {
	series := risingSeries(20, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	series[19].Value = math.NaN()
	_, err := NewPreprocessor(30).PrepareLatestForPrediction(series)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestFeaturesIgnoreSeriesZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 25 rows ending at 13:12 UTC.
	utc := risingSeries(25, time.Date(2025, 6, 26, 12, 0, 0, 0, time.UTC))
	local := make([]models.Point, len(utc))
	for i, p := range utc {
		local[i] = models.Point{Timestamp: p.Timestamp.In(berlin), Value: p.Value}
	}

	pre := NewPreprocessor(DefaultHorizon)
	fromUTC, err := pre.PrepareLatestForPrediction(utc)
	require.NoError(t, err)
	fromLocal, err := pre.PrepareLatestForPrediction(local)
	require.NoError(t, err)

	assert.Equal(t, fromUTC.Vector(), fromLocal.Vector())
	sin, cos := EncodeHour(13)
	assert.InDelta(t, sin, fromLocal.SinHour, 1e-12)
	assert.InDelta(t, cos, fromLocal.CosHour, 1e-12)

	// Month boundary: 23:30 UTC on 31 Jan is already February in Berlin.
	edge := risingSeries(20, time.Date(2025, 1, 31, 22, 33, 0, 0, time.UTC))
	for i := range edge {
		edge[i].Timestamp = edge[i].Timestamp.In(berlin)
	}
	row, err := pre.PrepareLatestForPrediction(edge)
	require.NoError(t, err)
	sinM, cosM := EncodeMonth(time.January)
	assert.InDelta(t, sinM, row.SinMonth, 1e-12)
	assert.InDelta(t, cosM, row.CosMonth, 1e-12)
}
