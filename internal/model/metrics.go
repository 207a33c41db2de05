package model

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/paveg/trackpop/internal/errors"
	"gonum.org/v1/gonum/mat"
)

// Metric names.
const (
	MetricMAE  = "mae"
	MetricMSE  = "mse"
	MetricRMSE = "rmse"
	MetricR2   = "r2"
)

// Metrics maps metric names to values. Values handed to callers are
// copies; mutate only your own.
type Metrics map[string]float64

// Clone returns an independent copy.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithPrefix returns a copy whose keys are prefixed, e.g. "test_".
func (m Metrics) WithPrefix(prefix string) Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[prefix+k] = v
	}
	return out
}

// Merge copies every entry of other into m and returns m.
func (m Metrics) Merge(other Metrics) Metrics {
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Keys returns the metric names sorted.
func (m Metrics) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m Metrics) String() string {
	parts := make([]string, 0, len(m))
	for _, k := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%.4f", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// LowerIsBetter reports whether smaller values of metric are better. It
// understands prefixed names such as "test_rmse" or "cv_mae_mean".
func LowerIsBetter(metric string) bool {
	base := metric
	for _, prefix := range []string{"train_", "test_", "cv_"} {
		base = strings.TrimPrefix(base, prefix)
	}
	base = strings.TrimSuffix(base, "_mean")
	switch base {
	case MetricMAE, MetricMSE, MetricRMSE:
		return true
	default:
		return false
	}
}

// Score computes MAE, MSE, RMSE and R² of predictions. R² is 0 when the
// true values have no variance.
func Score(yTrue, yPred []float64) (Metrics, error) {
	const op = "Score"
	if len(yTrue) == 0 {
		return nil, errors.NewInvalidInputError(op, "operation not supported on empty table")
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.NewInvalidInputError(op,
			fmt.Sprintf("true (%d) and predicted (%d) lengths differ", len(yTrue), len(yPred)))
	}

	n := float64(len(yTrue))
	avg := mean(yTrue)
	var absSum, sqSum, ssTot float64
	for i, y := range yTrue {
		d := yPred[i] - y
		absSum += math.Abs(d)
		sqSum += d * d
		t := y - avg
		ssTot += t * t
	}

	mse := sqSum / n
	r2 := 0.0
	if ssTot != 0 {
		r2 = 1 - sqSum/ssTot
	}
	return Metrics{
		MetricMAE:  absSum / n,
		MetricMSE:  mse,
		MetricRMSE: math.Sqrt(mse),
		MetricR2:   r2,
	}, nil
}

// Evaluate predicts X with est and scores the result against y.
func Evaluate(est Estimator, X mat.Matrix, y []float64) (Metrics, error) {
	preds, err := est.Predict(X)
	if err != nil {
		return nil, err
	}
	return Score(y, preds)
}
