// Package model implements the regression estimators trackpop trains,
// their hyperparameter variants, evaluation metrics, cross-validation and
// model comparison.
//
// Every estimator works on a dense feature matrix produced by the
// preprocess package and a float64 target vector. Estimators are
// unfitted until Fit is called; Fit always retrains from scratch.
package model

import (
	"github.com/paveg/trackpop/internal/errors"
)

// Kind names an estimator family.
type Kind string

// Supported estimator kinds.
const (
	KindRidge            Kind = "ridge"
	KindLasso            Kind = "lasso"
	KindElasticNet       Kind = "elasticnet"
	KindRandomForest     Kind = "random_forest"
	KindGradientBoosting Kind = "gradient_boosting"
	KindXGBoost          Kind = "xgboost"
)

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindRidge, KindLasso, KindElasticNet, KindRandomForest, KindGradientBoosting, KindXGBoost}
}

// KindNames returns the string form of Kinds.
func KindNames() []string {
	kinds := Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

// ParseKind resolves a model name. Unknown names fail with an
// UnknownModelKind error.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == name {
			return k, nil
		}
	}
	return "", errors.NewUnknownModelKindError("ParseKind", name, KindNames())
}

func (k Kind) String() string {
	return string(k)
}

// Linear reports whether the kind is a linear model.
func (k Kind) Linear() bool {
	return k == KindRidge || k == KindLasso || k == KindElasticNet
}
