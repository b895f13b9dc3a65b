package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/sajari/regression"
	"gonum.org/v1/gonum/mat"
)

// Regularization strengths.
const (
	ridgeAlpha     = 1.0
	lassoAlpha     = 0.1
	lassoMaxIter   = 1000
	lassoTolerance = 1e-4
	// Singular values below this fraction of the largest count as zero.
	rankTolerance = 1e-10
)

var errNonFinite = errors.New("non-finite coefficients")

// Linear is an affine model: Intercept + Coefficients·x.
type Linear struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// Predict implements Regressor.
func (l *Linear) Predict(x []float64) float64 {
	y := l.Intercept
	for j, c := range l.Coefficients {
		y += c * x[j]
	}
	return y
}

// Width implements Regressor.
func (l *Linear) Width() int { return len(l.Coefficients) }

func (l *Linear) check() error {
	if !finite(l.Intercept) {
		return errNonFinite
	}
	for _, c := range l.Coefficients {
		if !finite(c) {
			return errNonFinite
		}
	}
	return nil
}

// centered holds a design matrix and target shifted to zero column means.
type centered struct {
	x     *mat.Dense
	y     []float64
	xMean []float64
	yMean float64
}

func center(x [][]float64, y []float64) centered {
	n, p := len(x), len(x[0])
	c := centered{
		x:     mat.NewDense(n, p, nil),
		y:     make([]float64, n),
		xMean: make([]float64, p),
	}
	for i := range x {
		for j, v := range x[i] {
			c.xMean[j] += v
		}
		c.yMean += y[i]
	}
	for j := range c.xMean {
		c.xMean[j] /= float64(n)
	}
	c.yMean /= float64(n)
	for i := range x {
		for j, v := range x[i] {
			c.x.Set(i, j, v-c.xMean[j])
		}
		c.y[i] = y[i] - c.yMean
	}
	return c
}

// intercept recovers the unpenalized intercept for coefficients fit on
// centered data.
func (c centered) intercept(coef []float64) float64 {
	b0 := c.yMean
	for j, v := range coef {
		b0 -= v * c.xMean[j]
	}
	return b0
}

// fitOLS fits ordinary least squares. Well-posed designs go through sajari's
// QR regression; rank-deficient ones fall back to the minimum-norm SVD
// solution.
func fitOLS(x [][]float64, y []float64) (*Linear, error) {
	if len(x) == 0 {
		return nil, ErrInsufficientData
	}
	p := len(x[0])
	if p == 0 {
		return &Linear{Intercept: mean(y), Coefficients: []float64{}}, nil
	}

	c := center(x, y)
	var svd mat.SVD
	if !svd.Factorize(c.x, mat.SVDThin) {
		return nil, errors.New("ols: svd factorization failed")
	}
	rank := svdRank(&svd)

	if rank == p && len(x) > p+1 {
		l, err := fitQR(x, y)
		if err == nil {
			return l, nil
		}
	}
	if rank == 0 {
		return &Linear{Intercept: c.yMean, Coefficients: make([]float64, p)}, nil
	}

	var sol mat.Dense
	svd.SolveTo(&sol, mat.NewVecDense(len(c.y), c.y), rank)
	coef := make([]float64, p)
	for j := range coef {
		coef[j] = sol.At(j, 0)
	}
	l := &Linear{Intercept: c.intercept(coef), Coefficients: coef}
	if err := l.check(); err != nil {
		return nil, fmt.Errorf("ols: %w", err)
	}
	return l, nil
}

func fitQR(x [][]float64, y []float64) (*Linear, error) {
	r := new(regression.Regression)
	r.SetObserved("delay_minutes")
	for j := range x[0] {
		r.SetVar(j, fmt.Sprintf("x%d", j))
	}
	for i := range x {
		r.Train(regression.DataPoint(y[i], x[i]))
	}
	if err := r.Run(); err != nil {
		return nil, fmt.Errorf("ols: %w", err)
	}
	coeffs := r.GetCoeffs()
	if len(coeffs) != len(x[0])+1 {
		return nil, fmt.Errorf("ols: got %d coefficients for %d features", len(coeffs), len(x[0]))
	}
	l := &Linear{Intercept: coeffs[0], Coefficients: append([]float64(nil), coeffs[1:]...)}
	if err := l.check(); err != nil {
		return nil, fmt.Errorf("ols: %w", err)
	}
	return l, nil
}

func svdRank(svd *mat.SVD) int {
	vals := svd.Values(nil)
	if len(vals) == 0 || vals[0] == 0 {
		return 0
	}
	rank := 0
	for _, v := range vals {
		if v > rankTolerance*vals[0] {
			rank++
		}
	}
	return rank
}

// fitRidge solves (XᵀX + αI)β = Xᵀy on centered data with Cholesky.
func fitRidge(x [][]float64, y []float64, alpha float64) (*Linear, error) {
	if len(x) == 0 {
		return nil, ErrInsufficientData
	}
	p := len(x[0])
	if p == 0 {
		return &Linear{Intercept: mean(y), Coefficients: []float64{}}, nil
	}
	c := center(x, y)

	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, c.x.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+alpha)
	}

	var xty mat.VecDense
	xty.MulVec(c.x.T(), mat.NewVecDense(len(c.y), c.y))

	var chol mat.Cholesky
	if !chol.Factorize(gram) {
		return nil, errors.New("ridge: system is not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("ridge: %w", err)
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}
	l := &Linear{Intercept: c.intercept(coef), Coefficients: coef}
	if err := l.check(); err != nil {
		return nil, fmt.Errorf("ridge: %w", err)
	}
	return l, nil
}

// fitLasso minimizes (1/2n)·‖y − Xβ − β₀‖² + α‖β‖₁ by cyclic coordinate
// descent on centered data.
func fitLasso(x [][]float64, y []float64, alpha float64) (*Linear, error) {
	if len(x) == 0 {
		return nil, ErrInsufficientData
	}
	n, p := len(x), len(x[0])
	if p == 0 {
		return &Linear{Intercept: mean(y), Coefficients: []float64{}}, nil
	}
	c := center(x, y)

	cols := make([][]float64, p)
	norms := make([]float64, p)
	for j := 0; j < p; j++ {
		cols[j] = mat.Col(nil, j, c.x)
		for _, v := range cols[j] {
			norms[j] += v * v
		}
	}

	beta := make([]float64, p)
	resid := append([]float64(nil), c.y...)
	threshold := alpha * float64(n)

	for iter := 0; iter < lassoMaxIter; iter++ {
		var maxDelta, maxBeta float64
		for j := 0; j < p; j++ {
			if norms[j] == 0 {
				continue
			}
			old := beta[j]
			rho := 0.0
			for i, v := range cols[j] {
				rho += v * (resid[i] + v*old)
			}
			next := softThreshold(rho, threshold) / norms[j]
			if next != old {
				d := next - old
				for i, v := range cols[j] {
					resid[i] -= v * d
				}
				beta[j] = next
			}
			maxDelta = math.Max(maxDelta, math.Abs(next-old))
			maxBeta = math.Max(maxBeta, math.Abs(next))
		}
		if maxBeta == 0 || maxDelta/maxBeta < lassoTolerance {
			break
		}
	}

	l := &Linear{Intercept: c.intercept(beta), Coefficients: beta}
	if err := l.check(); err != nil {
		return nil, fmt.Errorf("lasso: %w", err)
	}
	return l, nil
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, v := range xs {
		s += v
	}
	return s / float64(len(xs))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
