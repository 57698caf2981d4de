package forecast

import (
	"fmt"
	"strconv"
)

// DefaultTrainRatio is the share of rows used for training.
const DefaultTrainRatio = 0.8

// TargetColumns names the target columns target_t+1 .. target_t+horizon.
func TargetColumns(horizon int) []string {
	cols := make([]string, horizon)
	for i := range cols {
		cols[i] = "target_t+" + strconv.Itoa(i+1)
	}
	return cols
}

// Split holds the train and test matrices in row order.
type Split struct {
	XTrain [][]float64
	YTrain [][]float64
	XTest  [][]float64
	YTest  [][]float64
}

// MultiTrainTestSplitter splits training rows by position. Rows are never
// shuffled so the test set always follows the training set in time.
type MultiTrainTestSplitter struct {
	TrainRatio float64
}

// Split cuts rows at int(len(rows)*TrainRatio).
func (s MultiTrainTestSplitter) Split(rows []TrainingRow) (Split, error) {
	ratio := s.TrainRatio
	if ratio == 0 {
		ratio = DefaultTrainRatio
	}
	if ratio <= 0 || ratio >= 1 {
		return Split{}, fmt.Errorf("train ratio must be in (0, 1), got %v", ratio)
	}

	cut := int(float64(len(rows)) * ratio)
	var out Split
	for i, r := range rows {
		x := r.Vector()
		y := append([]float64(nil), r.Targets...)
		if i < cut {
			out.XTrain = append(out.XTrain, x)
			out.YTrain = append(out.YTrain, y)
		} else {
			out.XTest = append(out.XTest, x)
			out.YTest = append(out.YTest, y)
		}
	}
	return out, nil
}
