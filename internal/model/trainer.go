package model

import (
	"fmt"
	"sort"

	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// Importance is the weight an estimator assigns to one input feature.
type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// FeatureImportance pairs est's importances with names, sorted by
// importance descending. It returns false when est does not rank features
// or is not fitted; that is not an error.
func FeatureImportance(est Estimator, names []string) ([]Importance, bool) {
	imp, ok := est.(Importancer)
	if !ok {
		return nil, false
	}
	values, ok := imp.Importances()
	if !ok {
		return nil, false
	}

	out := make([]Importance, len(values))
	for i, v := range values {
		name := fmt.Sprintf("feature_%d", i)
		if i < len(names) {
			name = names[i]
		}
		out[i] = Importance{Feature: name, Importance: v}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, true
}

// Trainer owns one estimator of a fixed kind and hyperparameter set.
type Trainer struct {
	params Params
	est    Estimator
}

// NewTrainer creates a trainer for the named kind. Zero hyperparameters
// take the kind's defaults.
func NewTrainer(kind string, hp config.Hyperparameters) (*Trainer, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	p, err := ParamsFor(k, hp)
	if err != nil {
		return nil, err
	}
	return NewTrainerWithParams(p)
}

// NewTrainerWithParams creates a trainer from a hyperparameter variant.
func NewTrainerWithParams(p Params) (*Trainer, error) {
	est, err := New(p)
	if err != nil {
		return nil, err
	}
	return &Trainer{params: p, est: est}, nil
}

// Kind returns the estimator kind.
func (t *Trainer) Kind() Kind { return t.params.Kind() }

// Params returns the hyperparameters.
func (t *Trainer) Params() Params { return t.params }

// Estimator returns the current estimator, fitted or not.
func (t *Trainer) Estimator() Estimator { return t.est }

// Fitted reports whether Fit has succeeded.
func (t *Trainer) Fitted() bool { return t.est.Fitted() }

// Fit trains a fresh estimator. On failure the previous fit is kept.
func (t *Trainer) Fit(X mat.Matrix, y []float64) error {
	est, err := New(t.params)
	if err != nil {
		return err
	}
	if err := est.Fit(X, y); err != nil {
		return fmt.Errorf("fitting %s: %w", t.Kind(), err)
	}
	t.est = est
	return nil
}

// Predict fails with a NotFitted error before Fit.
func (t *Trainer) Predict(X mat.Matrix) ([]float64, error) {
	return t.est.Predict(X)
}

// Evaluate scores the fitted estimator on X and y.
func (t *Trainer) Evaluate(X mat.Matrix, y []float64) (Metrics, error) {
	return Evaluate(t.est, X, y)
}

// CrossValidate runs k-fold cross-validation with the trainer's
// hyperparameters. The trainer's own fit is untouched.
func (t *Trainer) CrossValidate(X mat.Matrix, y []float64, folds int, seed int64, pool *parallel.WorkerPool) (*CVResult, error) {
	return CrossValidate(t.params, X, y, folds, seed, pool)
}

// CrossValidateFolds runs k-fold cross-validation over matrices built per
// fold by data. The trainer's own fit is untouched.
func (t *Trainer) CrossValidateFolds(y []float64, folds int, seed int64, pool *parallel.WorkerPool, data FoldData) (*CVResult, error) {
	return CrossValidateFolds(t.params, y, folds, seed, pool, data)
}

// FeatureImportance ranks features of the fitted estimator. The bool is
// false for kinds without importances.
func (t *Trainer) FeatureImportance(names []string) ([]Importance, bool, error) {
	if !t.est.Fitted() {
		return nil, false, errors.NewNotFittedError("Trainer.FeatureImportance", string(t.Kind()))
	}
	imp, ok := FeatureImportance(t.est, names)
	return imp, ok, nil
}
