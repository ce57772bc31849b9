package valuation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// TrainTestSplit deterministically partitions n row indices. The test
// set holds ceil(testFraction*n) rows and the train set the remainder.
func TrainTestSplit(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 rows to split, got %d", n)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// MeanAbsoluteError averages |actual - predicted|
func MeanAbsoluteError(actual, predicted []float64) (float64, error) {
	if len(actual) != len(predicted) {
		return 0, fmt.Errorf("%w: %d actual vs %d predicted", ErrDimensionMismatch, len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return 0, errors.New("cannot compute MAE of an empty set")
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual)), nil
}

func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
