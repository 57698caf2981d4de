// Package forecast turns a sensor series into model features, runs a
// multi-output regressor and assembles the predicted series.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

const (
	// DefaultHorizon is the number of predicted steps.
	DefaultHorizon = 30
	// MinHistory is the rows needed by the widest lag and rolling window.
	MinHistory = 20
	// rollingWindow is the trailing row count of the rolling statistics.
	rollingWindow = 20
)

// ErrInsufficientHistory is returned when a series is too short to featurize.
var ErrInsufficientHistory = errors.New("insufficient history")

// FeatureColumns is the fixed column order of a feature vector.
var FeatureColumns = []string{
	"measurement",
	"sin_hour",
	"cos_hour",
	"sin_month",
	"cos_month",
	"lag_1",
	"lag_6",
	"lag_20",
	"rolling_mean_20",
	"rolling_std_20",
}

// FeatureRow is the featurized form of one series row.
type FeatureRow struct {
	Timestamp     time.Time `json:"timestamp"`
	Measurement   float64   `json:"measurement"`
	SinHour       float64   `json:"sin_hour"`
	CosHour       float64   `json:"cos_hour"`
	SinMonth      float64   `json:"sin_month"`
	CosMonth      float64   `json:"cos_month"`
	Lag1          float64   `json:"lag_1"`
	Lag6          float64   `json:"lag_6"`
	Lag20         float64   `json:"lag_20"`
	RollingMean20 float64   `json:"rolling_mean_20"`
	RollingStd20  float64   `json:"rolling_std_20"`
}

// Vector returns the features in FeatureColumns order.
func (f FeatureRow) Vector() []float64 {
	return []float64{
		f.Measurement,
		f.SinHour,
		f.CosHour,
		f.SinMonth,
		f.CosMonth,
		f.Lag1,
		f.Lag6,
		f.Lag20,
		f.RollingMean20,
		f.RollingStd20,
	}
}

// TrainingRow is a feature row with its future target values.
type TrainingRow struct {
	FeatureRow
	// Targets[i] is the measurement i+1 rows ahead.
	Targets []float64 `json:"targets"`
}

// EncodeHour maps an hour of day onto the unit circle.
func EncodeHour(hour int) (sin, cos float64) {
	angle := 2 * math.Pi * float64(hour) / 24
	return math.Sin(angle), math.Cos(angle)
}

// EncodeMonth maps a calendar month (1-12) onto the unit circle.
func EncodeMonth(month time.Month) (sin, cos float64) {
	angle := 2 * math.Pi * float64(month) / 12
	return math.Sin(angle), math.Cos(angle)
}

// Preprocessor builds feature rows from a single-sensor series.
//
// Lags are row offsets, not wall-clock offsets: lag_k is the value k-1 rows
// before the current one, so lag_1 is the current value. Gaps in the series
// therefore stretch the lags in time.
type Preprocessor struct {
	Horizon int
}

// NewPreprocessor returns a preprocessor for horizon steps.
func NewPreprocessor(horizon int) Preprocessor {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return Preprocessor{Horizon: horizon}
}

func (p Preprocessor) horizon() int {
	if p.Horizon <= 0 {
		return DefaultHorizon
	}
	return p.Horizon
}

// SortSeries returns a copy of series ordered by timestamp.
func SortSeries(series []models.Point) []models.Point {
	out := make([]models.Point, len(series))
	copy(out, series)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// PrepareForTraining featurizes every row that has a full lookback and a full
// horizon of targets. A series of n rows yields max(0, n-horizon-19) rows.
func (p Preprocessor) PrepareForTraining(series []models.Point) []TrainingRow {
	h := p.horizon()
	sorted := SortSeries(series)
	values := pointValues(sorted)

	var rows []TrainingRow
	for i := MinHistory - 1; i+h < len(sorted); i++ {
		feat := featuresAt(sorted, values, i)
		if !finite(feat.Vector()...) {
			continue
		}
		targets := make([]float64, h)
		copy(targets, values[i+1:i+1+h])
		if !finite(targets...) {
			continue
		}
		rows = append(rows, TrainingRow{FeatureRow: feat, Targets: targets})
	}
	return rows
}

// PrepareLatestForPrediction featurizes the most recent row of series.
func (p Preprocessor) PrepareLatestForPrediction(series []models.Point) (FeatureRow, error) {
	if len(series) < MinHistory {
		return FeatureRow{}, fmt.Errorf("%w: need %d rows, have %d", ErrInsufficientHistory, MinHistory, len(series))
	}
	sorted := SortSeries(series)
	values := pointValues(sorted)

	feat := featuresAt(sorted, values, len(sorted)-1)
	if !finite(feat.Vector()...) {
		return FeatureRow{}, fmt.Errorf("%w: latest rows contain non-finite values", ErrInsufficientHistory)
	}
	return feat, nil
}

// featuresAt expects i >= MinHistory-1. Hour and month are taken in UTC so
// the encodings do not depend on the zone the series was loaded in.
func featuresAt(series []models.Point, values []float64, i int) FeatureRow {
	ts := series[i].Timestamp
	utc := ts.UTC()
	sinH, cosH := EncodeHour(utc.Hour())
	sinM, cosM := EncodeMonth(utc.Month())
	mean, std := stat.MeanStdDev(values[i-rollingWindow+1:i+1], nil)

	return FeatureRow{
		Timestamp:     ts,
		Measurement:   values[i],
		SinHour:       sinH,
		CosHour:       cosH,
		SinMonth:      sinM,
		CosMonth:      cosM,
		Lag1:          values[i],
		Lag6:          values[i-5],
		Lag20:         values[i-19],
		RollingMean20: mean,
		RollingStd20:  std,
	}
}

func pointValues(series []models.Point) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
