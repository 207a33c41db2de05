package model

import (
	"github.com/paveg/trackpop/internal/dataset"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/parallel"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CVResult holds per-fold validation scores.
type CVResult struct {
	Folds []Metrics
}

// Mean returns the mean of metric across folds.
func (r *CVResult) Mean(metric string) float64 {
	m, _ := stat.PopMeanStdDev(r.values(metric), nil)
	return m
}

// Std returns the population standard deviation of metric across folds.
func (r *CVResult) Std(metric string) float64 {
	_, s := stat.PopMeanStdDev(r.values(metric), nil)
	return s
}

func (r *CVResult) values(metric string) []float64 {
	vals := make([]float64, len(r.Folds))
	for i, f := range r.Folds {
		vals[i] = f[metric]
	}
	return vals
}

// Metrics summarizes the folds as cv_<metric>_mean and cv_<metric>_std for
// r2, mae and rmse.
func (r *CVResult) Metrics() Metrics {
	out := Metrics{}
	for _, name := range []string{MetricR2, MetricMAE, MetricRMSE} {
		mean, std := stat.PopMeanStdDev(r.values(name), nil)
		out["cv_"+name+"_mean"] = mean
		out["cv_"+name+"_std"] = std
	}
	return out
}

// FoldData builds the training and validation matrices of one fold from
// row indices into the full data. It may run concurrently for different
// folds.
type FoldData func(train, test []int) (XTrain, XTest *mat.Dense, err error)

// CrossValidate scores params with k-fold cross-validation. Each fold
// trains a fresh estimator on the other folds and scores on itself. Folds
// run on pool; a nil pool runs them one at a time.
func CrossValidate(params Params, X mat.Matrix, y []float64, folds int, seed int64, pool *parallel.WorkerPool) (*CVResult, error) {
	d, err := checkTrainingData("CrossValidate", X, y)
	if err != nil {
		return nil, err
	}
	return CrossValidateFolds(params, y, folds, seed, pool, func(train, test []int) (*mat.Dense, *mat.Dense, error) {
		return selectRows(d, train), selectRows(d, test), nil
	})
}

// CrossValidateFolds is CrossValidate with per-fold matrices built by data,
// so a preprocessing step can be refitted on each fold's training rows.
func CrossValidateFolds(params Params, y []float64, folds int, seed int64, pool *parallel.WorkerPool, data FoldData) (*CVResult, error) {
	const op = "CrossValidate"
	if data == nil {
		return nil, errors.NewInvalidInputError(op, "fold data must not be nil")
	}
	if _, err := New(params); err != nil {
		return nil, err
	}
	n := len(y)
	groups, err := dataset.KFold(n, folds, seed)
	if err != nil {
		return nil, err
	}

	if pool == nil {
		pool = parallel.NewWorkerPool(1)
		defer pool.Close()
	}

	scores, err := parallel.TryProcessIndexed(pool, groups, func(_ int, test []int) (Metrics, error) {
		train := dataset.Complement(n, test)
		XTrain, XTest, err := data(train, test)
		if err != nil {
			return nil, err
		}
		est, err := New(params)
		if err != nil {
			return nil, err
		}
		if err := est.Fit(XTrain, pick(y, train)); err != nil {
			return nil, err
		}
		return Evaluate(est, XTest, pick(y, test))
	})
	if err != nil {
		return nil, err
	}
	return &CVResult{Folds: scores}, nil
}

func selectRows(d *mat.Dense, rows []int) *mat.Dense {
	_, p := d.Dims()
	out := mat.NewDense(len(rows), p, nil)
	for i, r := range rows {
		out.SetRow(i, d.RawRowView(r))
	}
	return out
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
