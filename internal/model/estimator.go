package model

import (
	"encoding/gob"
	"fmt"
	"math"

	"github.com/paveg/trackpop/internal/errors"
	"gonum.org/v1/gonum/mat"
)

// Estimator is a regression model with hyperparameters fixed at
// construction.
type Estimator interface {
	Kind() Kind
	Params() Params
	// Fit trains on X (rows are samples) and y, discarding any earlier fit.
	Fit(X mat.Matrix, y []float64) error
	// Predict fails with a NotFitted error before Fit.
	Predict(X mat.Matrix) ([]float64, error)
	Fitted() bool
}

// Importancer is implemented by estimators that rank their input features.
// The returned values are non-negative and sum to 1 unless every value is 0.
type Importancer interface {
	Importances() ([]float64, bool)
}

// Coefficienter is implemented by linear estimators.
type Coefficienter interface {
	Coefficients() (coef []float64, intercept float64, ok bool)
}

func init() {
	gob.Register(&Ridge{})
	gob.Register(&ElasticNet{})
	gob.Register(&RandomForest{})
	gob.Register(&GradientBoosting{})
	gob.Register(&XGBoost{})
}

// checkTrainingData validates shapes and values and returns X as a dense
// matrix.
func checkTrainingData(op string, X mat.Matrix, y []float64) (*mat.Dense, error) {
	if X == nil {
		return nil, errors.NewInvalidInputError(op, "feature matrix must not be nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewInvalidInputError(op, "operation not supported on empty table")
	}
	if r != len(y) {
		return nil, errors.NewInvalidInputError(op, fmt.Sprintf("feature rows (%d) and target length (%d) differ", r, len(y)))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NewInvalidInputError(op, fmt.Sprintf("target value %d is not finite", i))
		}
	}
	d := toDense(X)
	if err := checkFinite(op, d); err != nil {
		return nil, err
	}
	return d, nil
}

// checkPredictData validates that X has the fitted feature count. A matrix
// with no rows yields a nil result and no error.
func checkPredictData(op string, X mat.Matrix, features int) (*mat.Dense, error) {
	if X == nil {
		return nil, errors.NewInvalidInputError(op, "feature matrix must not be nil")
	}
	r, c := X.Dims()
	if c != features {
		return nil, errors.NewInvalidInputError(op, fmt.Sprintf("expected %d features, got %d", features, c))
	}
	if r == 0 {
		return nil, nil
	}
	d := toDense(X)
	if err := checkFinite(op, d); err != nil {
		return nil, err
	}
	return d, nil
}

func checkFinite(op string, d *mat.Dense) error {
	r, c := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := d.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewInvalidInputError(op, fmt.Sprintf("feature value at row %d column %d is not finite", i, j))
			}
		}
	}
	return nil
}

func toDense(X mat.Matrix) *mat.Dense {
	if d, ok := X.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(X)
}

// columns returns X column-major, the layout split search scans.
func columns(X *mat.Dense) [][]float64 {
	r, c := X.Dims()
	cols := make([][]float64, c)
	for j := 0; j < c; j++ {
		cols[j] = mat.Col(make([]float64, r), j, X)
	}
	return cols
}

// normalize scales v in place to sum to 1; an all-zero vector is left as is.
func normalize(v []float64) []float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return v
	}
	for i := range v {
		v[i] /= total
	}
	return v
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
