package forecast

import (
	"fmt"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// TrainOptions configures Train. Zero values take the package defaults.
type TrainOptions struct {
	Horizon    int
	TrainRatio float64
	Lambda     float64
}

// TrainReport describes one training run.
type TrainReport struct {
	Rows      int     `json:"rows"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	TestMAE   float64 `json:"test_mae"`
}

// Train featurizes series, splits it in time order, fits a LinearModel on
// the training part and scores it on the rest.
func Train(series []models.Point, opts TrainOptions) (*LinearModel, TrainReport, error) {
	var report TrainReport
	rows := NewPreprocessor(opts.Horizon).PrepareForTraining(series)
	report.Rows = len(rows)
	if len(rows) < 2 {
		return nil, report, fmt.Errorf("%w: %d training rows from %d points", ErrInsufficientHistory, len(rows), len(series))
	}

	split, err := MultiTrainTestSplitter{TrainRatio: opts.TrainRatio}.Split(rows)
	if err != nil {
		return nil, report, err
	}
	report.TrainRows = len(split.XTrain)
	report.TestRows = len(split.XTest)
	if report.TrainRows == 0 {
		return nil, report, fmt.Errorf("%w: empty training split", ErrInsufficientHistory)
	}

	model, err := FitLinear(split.XTrain, split.YTrain, opts.Lambda)
	if err != nil {
		return nil, report, fmt.Errorf("fit: %w", err)
	}

	if report.TestRows > 0 {
		mae, err := MeanAbsoluteError(split.YTest, model.PredictBatch(split.XTest))
		if err != nil {
			return nil, report, fmt.Errorf("score: %w", err)
		}
		report.TestMAE = mae
		model.TestMAE = mae
	}
	return model, report, nil
}
