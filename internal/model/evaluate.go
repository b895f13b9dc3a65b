package model

import (
	"context"
	"math"
	"math/rand/v2"
)

// testFraction is the share of rows held out for evaluation.
const testFraction = 0.2

// maxFolds caps the number of cross-validation folds.
const maxFolds = 5

// split is a shuffled train/test partition of row indices.
type split struct {
	train []int
	test  []int
}

// trainTestSplit shuffles row indices with a seeded stream and holds out
// ceil(0.2·n) rows for testing, keeping at least one training row. A single
// row is used for both training and testing.
func trainTestSplit(n int, seed uint64) split {
	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)
	if n == 1 {
		return split{train: perm, test: perm}
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	return split{test: perm[:nTest], train: perm[nTest:]}
}

func pick[T any](src []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = src[j]
	}
	return out
}

func meanSquaredError(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var s float64
	for i := range y {
		d := y[i] - pred[i]
		s += d * d
	}
	return s / float64(len(y))
}

func meanAbsoluteError(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var s float64
	for i := range y {
		s += math.Abs(y[i] - pred[i])
	}
	return s / float64(len(y))
}

// r2Score is the coefficient of determination. With a constant target it is
// 1 for a perfect fit and 0 otherwise.
func r2Score(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	m := mean(y)
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - pred[i]) * (y[i] - pred[i])
		ssTot += (y[i] - m) * (y[i] - m)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func predictAll(r Regressor, x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = r.Predict(row)
	}
	return out
}

// fitFunc trains a regressor on scaled rows.
type fitFunc func(ctx context.Context, x [][]float64, y []float64) (Regressor, []float64, error)

// kFolds returns contiguous folds over n rows in order, the first n%k folds
// one row larger.
func kFolds(n, k int) [][2]int {
	folds := make([][2]int, 0, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		folds = append(folds, [2]int{start, start + size})
		start += size
	}
	return folds
}

// crossValidate returns the root of the mean fold MSE and the number of
// folds used. It returns ok=false when the rows are too few to fold.
func crossValidate(ctx context.Context, fit fitFunc, x [][]float64, y []float64) (rmse float64, folds int, ok bool, err error) {
	n := len(x)
	k := min(maxFolds, n)
	if k < 2 {
		return 0, 0, false, nil
	}

	var total float64
	for _, fold := range kFolds(n, k) {
		if err := ctx.Err(); err != nil {
			return 0, 0, false, err
		}
		trainX := append(append([][]float64{}, x[:fold[0]]...), x[fold[1]:]...)
		trainY := append(append([]float64{}, y[:fold[0]]...), y[fold[1]:]...)
		r, _, err := fit(ctx, trainX, trainY)
		if err != nil {
			return 0, 0, false, err
		}
		total += meanSquaredError(y[fold[0]:fold[1]], predictAll(r, x[fold[0]:fold[1]]))
	}
	return math.Sqrt(total / float64(k)), k, true, nil
}

// evaluate scores a fitted regressor on both splits and cross-validates the
// algorithm on the training split.
func evaluate(ctx context.Context, fit fitFunc, r Regressor, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) (*Metrics, error) {
	trainPred := predictAll(r, trainX)
	testPred := predictAll(r, testX)
	m := &Metrics{
		TrainMSE: meanSquaredError(trainY, trainPred),
		TestMSE:  meanSquaredError(testY, testPred),
		TrainR2:  r2Score(trainY, trainPred),
		TestR2:   r2Score(testY, testPred),
		TrainMAE: meanAbsoluteError(trainY, trainPred),
		TestMAE:  meanAbsoluteError(testY, testPred),
	}
	rmse, folds, ok, err := crossValidate(ctx, fit, trainX, trainY)
	if err != nil {
		return nil, err
	}
	if ok {
		m.CVRMSE = &rmse
		m.CVFolds = folds
	}
	return m, nil
}
