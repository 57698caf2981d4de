package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

func rampSeries(n int) []models.Point {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Point, n)
	for i := range out {
		out[i] = models.Point{Timestamp: start.Add(time.Duration(i) * 3 * time.Minute), Value: 15 + float64(i)*0.01}
	}
	return out
}

func TestTrain(t *testing.T) {
	model, report, err := Train(rampSeries(200), TrainOptions{})
	require.NoError(t, err)

	assert.Equal(t, 151, report.Rows)
	assert.Equal(t, 120, report.TrainRows)
	assert.Equal(t, 31, report.TestRows)
	assert.Less(t, report.TestMAE, 0.5)
	assert.Equal(t, report.TestMAE, model.TestMAE)
	assert.Equal(t, DefaultHorizon, model.Horizon)
	require.NoError(t, model.Validate())

	pred, err := model.Predict(context.Background(), mustLatest(t, rampSeries(200)))
	require.NoError(t, err)
	assert.Len(t, pred, DefaultHorizon)
}

func TestTrainInsufficientHistory(t *testing.T) {
	_, report, err := Train(rampSeries(50), TrainOptions{})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
	assert.Equal(t, 1, report.Rows)

	_, _, err = Train(rampSeries(200), TrainOptions{TrainRatio: 1.5})
	assert.Error(t, err)
}

func mustLatest(t *testing.T, series []models.Point) FeatureRow {
	t.Helper()
	row, err := NewPreprocessor(DefaultHorizon).PrepareLatestForPrediction(series)
	require.NoError(t, err)
	return row
}
