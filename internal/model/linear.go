package model

import (
	"math"

	"github.com/paveg/trackpop/internal/errors"
	"gonum.org/v1/gonum/mat"
)

// Ridge minimizes ||y - Xw - b||^2 + Alpha*||w||^2. The intercept is not
// penalized.
type Ridge struct {
	Hyper     RidgeParams
	Coef      []float64
	Intercept float64
	IsFitted  bool
}

func (m *Ridge) Kind() Kind     { return KindRidge }
func (m *Ridge) Params() Params { return m.Hyper }
func (m *Ridge) Fitted() bool   { return m.IsFitted }

// Fit solves the centered normal equations (XcᵀXc + αI)w = Xcᵀyc and
// recovers the intercept from the column means.
func (m *Ridge) Fit(X mat.Matrix, y []float64) error {
	const op = "Ridge.Fit"

	d, err := checkTrainingData(op, X, y)
	if err != nil {
		return err
	}
	xc, yc, xMean, yMean := center(d, y)
	_, p := xc.Dims()

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.Hyper.Alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), mat.NewVecDense(len(yc), yc))

	var w mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(&gram) {
		if err := chol.SolveVecTo(&w, &rhs); err != nil {
			return errors.NewInvalidInputError(op, err.Error())
		}
	} else {
		// Rank-deficient without regularization: fall back to least squares.
		if err := w.SolveVec(xc, mat.NewVecDense(len(yc), yc)); err != nil {
			return errors.NewInvalidInputError(op, err.Error())
		}
	}

	m.Coef = make([]float64, p)
	for j := range m.Coef {
		m.Coef[j] = w.AtVec(j)
	}
	m.Intercept = yMean - dot(xMean, m.Coef)
	m.IsFitted = true
	return nil
}

// Predict returns Xw + b.
func (m *Ridge) Predict(X mat.Matrix) ([]float64, error) {
	if !m.IsFitted {
		return nil, errors.NewNotFittedError("Ridge.Predict", string(KindRidge))
	}
	return linearPredict("Ridge.Predict", X, m.Coef, m.Intercept)
}

// Coefficients returns a copy of the fitted weights and the intercept.
func (m *Ridge) Coefficients() ([]float64, float64, bool) {
	if !m.IsFitted {
		return nil, 0, false
	}
	return append([]float64(nil), m.Coef...), m.Intercept, true
}

// ElasticNet minimizes
//
//	1/(2n)*||y - Xw - b||^2 + Alpha*L1Ratio*||w||_1 + Alpha*(1-L1Ratio)/2*||w||^2
//
// by cyclic coordinate descent. Lasso is the L1Ratio = 1 case; Variant
// records which kind was requested.
type ElasticNet struct {
	Hyper     ElasticNetParams
	Variant   Kind
	Coef      []float64
	Intercept float64
	NIter     int
	IsFitted  bool
}

func (m *ElasticNet) Kind() Kind {
	if m.Variant == "" {
		return KindElasticNet
	}
	return m.Variant
}

func (m *ElasticNet) Params() Params {
	if m.Variant == KindLasso {
		return LassoParams{Alpha: m.Hyper.Alpha, MaxIter: m.Hyper.MaxIter, Tol: m.Hyper.Tol}
	}
	return m.Hyper
}

func (m *ElasticNet) Fitted() bool { return m.IsFitted }

// Fit runs coordinate descent on centered data until the largest weight
// update falls below Tol times the largest weight, or MaxIter sweeps.
func (m *ElasticNet) Fit(X mat.Matrix, y []float64) error {
	d, err := checkTrainingData(string(m.Kind())+".Fit", X, y)
	if err != nil {
		return err
	}
	xc, yc, xMean, yMean := center(d, y)
	n, p := xc.Dims()
	cols := columns(xc)

	l1 := m.Hyper.Alpha * m.Hyper.L1Ratio
	l2 := m.Hyper.Alpha * (1 - m.Hyper.L1Ratio)

	norms := make([]float64, p)
	for j, col := range cols {
		norms[j] = dot(col, col) / float64(n)
	}

	w := make([]float64, p)
	residual := append([]float64(nil), yc...)

	iter := 0
	for iter < m.Hyper.MaxIter {
		iter++
		var maxDelta, maxW float64
		for j, col := range cols {
			if norms[j] == 0 {
				continue
			}
			old := w[j]
			rho := dot(col, residual)/float64(n) + norms[j]*old
			w[j] = softThreshold(rho, l1) / (norms[j] + l2)
			if delta := w[j] - old; delta != 0 {
				for i, x := range col {
					residual[i] -= x * delta
				}
				maxDelta = math.Max(maxDelta, math.Abs(delta))
			}
			maxW = math.Max(maxW, math.Abs(w[j]))
		}
		if maxW == 0 || maxDelta <= m.Hyper.Tol*maxW {
			break
		}
	}

	m.Coef = w
	m.Intercept = yMean - dot(xMean, w)
	m.NIter = iter
	m.IsFitted = true
	return nil
}

// Predict returns Xw + b.
func (m *ElasticNet) Predict(X mat.Matrix) ([]float64, error) {
	op := string(m.Kind()) + ".Predict"
	if !m.IsFitted {
		return nil, errors.NewNotFittedError(op, string(m.Kind()))
	}
	return linearPredict(op, X, m.Coef, m.Intercept)
}

// Coefficients returns a copy of the fitted weights and the intercept.
func (m *ElasticNet) Coefficients() ([]float64, float64, bool) {
	if !m.IsFitted {
		return nil, 0, false
	}
	return append([]float64(nil), m.Coef...), m.Intercept, true
}

func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	default:
		return 0
	}
}

// center subtracts column means from X and the mean from y.
func center(X *mat.Dense, y []float64) (xc *mat.Dense, yc []float64, xMean []float64, yMean float64) {
	n, p := X.Dims()
	xc = mat.DenseCopyOf(X)
	xMean = make([]float64, p)
	for j := 0; j < p; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += X.At(i, j)
		}
		xMean[j] = s / float64(n)
		for i := 0; i < n; i++ {
			xc.Set(i, j, X.At(i, j)-xMean[j])
		}
	}
	yMean = mean(y)
	yc = make([]float64, n)
	for i, v := range y {
		yc[i] = v - yMean
	}
	return xc, yc, xMean, yMean
}

func linearPredict(op string, X mat.Matrix, coef []float64, intercept float64) ([]float64, error) {
	d, err := checkPredictData(op, X, len(coef))
	if err != nil {
		return nil, err
	}
	if d == nil {
		return []float64{}, nil
	}
	n, _ := d.Dims()
	var out mat.VecDense
	out.MulVec(d, mat.NewVecDense(len(coef), coef))
	preds := make([]float64, n)
	for i := range preds {
		preds[i] = out.AtVec(i) + intercept
	}
	return preds, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
