package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Regressor predicts every horizon step from one feature row.
type Regressor interface {
	Predict(ctx context.Context, row FeatureRow) ([]float64, error)
}

// DefaultLambda is the ridge penalty used by the trainer.
const DefaultLambda = 1e-3

// LinearModel is a multi-output ridge regression with one weight vector per
// horizon step. It is stored as JSON.
type LinearModel struct {
	Features   []string    `json:"features"`
	Horizon    int         `json:"horizon"`
	Lambda     float64     `json:"lambda"`
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
	TrainedAt  time.Time   `json:"trained_at"`
	TrainRows  int         `json:"train_rows"`
	TestMAE    float64     `json:"test_mae,omitempty"`
}

// FitLinear fits a ridge model to x (rows x features) and y (rows x horizon).
// The intercept is not penalised.
func FitLinear(x, y [][]float64, lambda float64) (*LinearModel, error) {
	n := len(x)
	if n == 0 {
		return nil, errors.New("no training rows")
	}
	if len(y) != n {
		return nil, fmt.Errorf("x has %d rows, y has %d", n, len(y))
	}
	p := len(x[0])
	h := len(y[0])
	if p == 0 || h == 0 {
		return nil, errors.New("empty feature or target rows")
	}
	if lambda <= 0 {
		lambda = DefaultLambda
	}

	// Design matrix with a trailing bias column.
	design := mat.NewDense(n, p+1, nil)
	targets := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		if len(x[i]) != p || len(y[i]) != h {
			return nil, fmt.Errorf("row %d has inconsistent width", i)
		}
		for j, v := range x[i] {
			design.Set(i, j, v)
		}
		design.Set(i, p, 1)
		targets.SetRow(i, y[i])
	}

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+lambda)
	}
	var rhs mat.Dense
	rhs.Mul(design.T(), targets)

	var coef mat.Dense
	if err := coef.Solve(&gram, &rhs); err != nil {
		// A poorly conditioned system still yields a solution.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solve ridge system: %w", err)
		}
	}

	m := &LinearModel{
		Features:   append([]string(nil), FeatureColumns...),
		Horizon:    h,
		Lambda:     lambda,
		Weights:    make([][]float64, h),
		Intercepts: make([]float64, h),
		TrainedAt:  time.Now().UTC(),
		TrainRows:  n,
	}
	if p != len(FeatureColumns) {
		m.Features = nil
	}
	for k := 0; k < h; k++ {
		w := make([]float64, p)
		for j := 0; j < p; j++ {
			w[j] = coef.At(j, k)
		}
		m.Weights[k] = w
		m.Intercepts[k] = coef.At(p, k)
	}
	return m, nil
}

// Validate checks that the model is usable.
func (m *LinearModel) Validate() error {
	if m.Horizon <= 0 {
		return errors.New("model horizon must be positive")
	}
	if len(m.Weights) != m.Horizon || len(m.Intercepts) != m.Horizon {
		return fmt.Errorf("model has %d weight rows and %d intercepts for horizon %d", len(m.Weights), len(m.Intercepts), m.Horizon)
	}
	for k, w := range m.Weights {
		if len(w) != len(FeatureColumns) {
			return fmt.Errorf("weight row %d has %d features, want %d", k, len(w), len(FeatureColumns))
		}
	}
	return nil
}

// PredictVector applies the model to a raw feature vector.
func (m *LinearModel) PredictVector(x []float64) []float64 {
	out := make([]float64, m.Horizon)
	for k := range out {
		out[k] = floats.Dot(m.Weights[k], x) + m.Intercepts[k]
	}
	return out
}

// Predict implements Regressor.
func (m *LinearModel) Predict(_ context.Context, row FeatureRow) ([]float64, error) {
	x := row.Vector()
	if len(m.Weights) == 0 || len(m.Weights[0]) != len(x) {
		return nil, fmt.Errorf("model expects %d features, row has %d", widthOf(m.Weights), len(x))
	}
	return m.PredictVector(x), nil
}

// PredictBatch predicts each row of x.
func (m *LinearModel) PredictBatch(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = m.PredictVector(row)
	}
	return out
}

// MeanAbsoluteError averages |yTrue-yPred| over every cell.
func MeanAbsoluteError(yTrue, yPred [][]float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("row count mismatch: %d vs %d", len(yTrue), len(yPred))
	}
	var sum float64
	cells := 0
	for i := range yTrue {
		if len(yTrue[i]) != len(yPred[i]) {
			return 0, fmt.Errorf("row %d width mismatch", i)
		}
		for j := range yTrue[i] {
			sum += math.Abs(yTrue[i][j] - yPred[i][j])
			cells++
		}
	}
	if cells == 0 {
		return 0, errors.New("no values to compare")
	}
	return sum / float64(cells), nil
}

func widthOf(w [][]float64) int {
	if len(w) == 0 {
		return 0
	}
	return len(w[0])
}
