// Package evaluate computes plug-in goodness-of-fit on the model's log scale.
package evaluate

import (
	"math"

	"bnla/internal/errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RSquared returns 1 - SSres/SStot. It is at most 1, equal to 1 only for a
// perfect fit, and NaN when the observations have no variance.
func RSquared(observed, predicted []float64) (float64, error) {
	if err := checkPaired(observed, predicted); err != nil {
		return math.NaN(), err
	}
	mean := stat.Mean(observed, nil)
	ssTot := 0.0
	for _, y := range observed {
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot == 0 {
		return math.NaN(), nil
	}
	return 1 - sumSquaredResiduals(observed, predicted)/ssTot, nil
}

// RMSE returns the root mean squared residual.
func RMSE(observed, predicted []float64) (float64, error) {
	if err := checkPaired(observed, predicted); err != nil {
		return math.NaN(), err
	}
	return math.Sqrt(sumSquaredResiduals(observed, predicted) / float64(len(observed))), nil
}

func sumSquaredResiduals(observed, predicted []float64) float64 {
	res := make([]float64, len(observed))
	floats.SubTo(res, observed, predicted)
	return floats.Dot(res, res)
}

func checkPaired(observed, predicted []float64) error {
	if len(observed) == 0 {
		return errors.InvalidInput("no observations to evaluate")
	}
	if len(observed) != len(predicted) {
		return errors.InvalidInput("observed and predicted lengths differ")
	}
	return nil
}
