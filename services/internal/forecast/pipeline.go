package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// DefaultStep is the spacing of predicted points.
const DefaultStep = 3 * time.Minute

// Point sources.
const (
	SourceReal = "real"
	SourcePred = "pred"
)

// ForecastPoint is one point of an assembled forecast.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Source    string    `json:"q"`
}

// ForecastSeries is the real history followed by the predicted steps.
type ForecastSeries struct {
	Title  string          `json:"title"`
	Unit   string          `json:"unit"`
	From   time.Time       `json:"from"`
	To     time.Time       `json:"to"`
	Points []ForecastPoint `json:"points"`
}

// Predicted returns only the predicted points.
func (s ForecastSeries) Predicted() []ForecastPoint {
	var out []ForecastPoint
	for _, p := range s.Points {
		if p.Source == SourcePred {
			out = append(out, p)
		}
	}
	return out
}

// Headline renders "<prefix> von HH:MM bis HH:MM Uhr" in the zone of from.
func Headline(prefix string, from, to time.Time) string {
	return fmt.Sprintf("%s von %s bis %s Uhr", prefix, from.Format("15:04"), to.In(from.Location()).Format("15:04"))
}

// Pipeline runs Raw -> Featurized -> Predicted -> Assembled.
type Pipeline struct {
	Preprocessor Preprocessor
	Regressor    Regressor
	Step         time.Duration
}

// NewPipeline returns a pipeline with the default horizon and step.
func NewPipeline(reg Regressor) *Pipeline {
	return &Pipeline{
		Preprocessor: NewPreprocessor(DefaultHorizon),
		Regressor:    reg,
		Step:         DefaultStep,
	}
}

// Forecast predicts the next horizon steps after the last point of series.
// It returns ErrInsufficientHistory when series is too short.
func (p *Pipeline) Forecast(ctx context.Context, series []models.Point, title, unit string) (ForecastSeries, error) {
	if len(series) < MinHistory {
		return ForecastSeries{}, fmt.Errorf("%w: need %d rows, have %d", ErrInsufficientHistory, MinHistory, len(series))
	}
	if p.Regressor == nil {
		return ForecastSeries{}, ErrNoModel
	}

	row, err := p.Preprocessor.PrepareLatestForPrediction(series)
	if err != nil {
		return ForecastSeries{}, err
	}

	pred, err := p.Regressor.Predict(ctx, row)
	if err != nil {
		return ForecastSeries{}, fmt.Errorf("predict: %w", err)
	}
	horizon := p.Preprocessor.horizon()
	if len(pred) != horizon {
		return ForecastSeries{}, fmt.Errorf("model returned %d values, want %d", len(pred), horizon)
	}

	step := p.Step
	if step <= 0 {
		step = DefaultStep
	}

	out := ForecastSeries{
		Title:  title,
		Unit:   unit,
		Points: make([]ForecastPoint, 0, len(series)+horizon),
	}
	for _, pt := range series {
		out.Points = append(out.Points, ForecastPoint{Timestamp: pt.Timestamp, Value: pt.Value, Source: SourceReal})
	}
	last := row.Timestamp
	for i, v := range pred {
		out.Points = append(out.Points, ForecastPoint{
			Timestamp: last.Add(time.Duration(i+1) * step),
			Value:     v,
			Source:    SourcePred,
		})
	}
	out.From = last
	out.To = last.Add(time.Duration(horizon) * step)
	return out, nil
}
