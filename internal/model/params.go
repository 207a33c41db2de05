package model

import (
	"math"

	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/validation"
)

// Params is the hyperparameter set of one estimator kind. The set of
// implementations is closed; New matches on it exhaustively.
type Params interface {
	Kind() Kind
	validate() error
}

// RidgeParams configures L2-regularized least squares.
type RidgeParams struct {
	Alpha float64
}

// LassoParams configures L1-regularized least squares.
type LassoParams struct {
	Alpha   float64
	MaxIter int
	Tol     float64
}

// ElasticNetParams configures mixed L1/L2-regularized least squares.
type ElasticNetParams struct {
	Alpha   float64
	L1Ratio float64
	MaxIter int
	Tol     float64
}

// RandomForestParams configures a bagged ensemble of regression trees.
type RandomForestParams struct {
	NEstimators     int
	MaxDepth        int // 0 grows until leaves are pure or too small
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     float64 // fraction of features considered per split
	RandomState     int64
	NJobs           int // <= 0 uses all CPUs
}

// GradientBoostingParams configures least-squares gradient boosting.
type GradientBoostingParams struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	LearningRate    float64
	Subsample       float64
	RandomState     int64
}

// XGBoostParams configures second-order boosting with regularized leaves.
type XGBoostParams struct {
	NEstimators     int
	MaxDepth        int
	LearningRate    float64
	Lambda          float64
	Gamma           float64
	MinChildWeight  float64
	Subsample       float64
	ColsampleByTree float64
	RandomState     int64
	NJobs           int
}

func (RidgeParams) Kind() Kind            { return KindRidge }
func (LassoParams) Kind() Kind            { return KindLasso }
func (ElasticNetParams) Kind() Kind       { return KindElasticNet }
func (RandomForestParams) Kind() Kind     { return KindRandomForest }
func (GradientBoostingParams) Kind() Kind { return KindGradientBoosting }
func (XGBoostParams) Kind() Kind          { return KindXGBoost }

const paramsOp = "model.New"

func (p RidgeParams) validate() error {
	return validation.ValidateRange(paramsOp, "alpha", p.Alpha, 0, maxFloat)
}

func (p LassoParams) validate() error {
	return validateAll(
		validation.ValidateRange(paramsOp, "alpha", p.Alpha, 0, maxFloat),
		validatePositive("max_iter", p.MaxIter),
		validation.ValidateRange(paramsOp, "tol", p.Tol, 0, maxFloat),
	)
}

func (p ElasticNetParams) validate() error {
	return validateAll(
		validation.ValidateRange(paramsOp, "alpha", p.Alpha, 0, maxFloat),
		validation.ValidateRange(paramsOp, "l1_ratio", p.L1Ratio, 0, 1),
		validatePositive("max_iter", p.MaxIter),
		validation.ValidateRange(paramsOp, "tol", p.Tol, 0, maxFloat),
	)
}

func (p RandomForestParams) validate() error {
	return validateAll(
		validatePositive("n_estimators", p.NEstimators),
		validation.ValidateRange(paramsOp, "max_depth", float64(p.MaxDepth), 0, maxFloat),
		validation.ValidateRange(paramsOp, "min_samples_split", float64(p.MinSamplesSplit), 2, maxFloat),
		validatePositive("min_samples_leaf", p.MinSamplesLeaf),
		validateFraction("max_features", p.MaxFeatures),
	)
}

func (p GradientBoostingParams) validate() error {
	return validateAll(
		validatePositive("n_estimators", p.NEstimators),
		validation.ValidateRange(paramsOp, "max_depth", float64(p.MaxDepth), 0, maxFloat),
		validation.ValidateRange(paramsOp, "min_samples_split", float64(p.MinSamplesSplit), 2, maxFloat),
		validatePositive("min_samples_leaf", p.MinSamplesLeaf),
		validateFraction("learning_rate", p.LearningRate),
		validateFraction("subsample", p.Subsample),
	)
}

func (p XGBoostParams) validate() error {
	return validateAll(
		validatePositive("n_estimators", p.NEstimators),
		validation.ValidateRange(paramsOp, "max_depth", float64(p.MaxDepth), 0, maxFloat),
		validateFraction("learning_rate", p.LearningRate),
		validation.ValidateRange(paramsOp, "lambda", p.Lambda, 0, maxFloat),
		validation.ValidateRange(paramsOp, "gamma", p.Gamma, 0, maxFloat),
		validation.ValidateRange(paramsOp, "min_child_weight", p.MinChildWeight, 0, maxFloat),
		validateFraction("subsample", p.Subsample),
		validateFraction("colsample_bytree", p.ColsampleByTree),
	)
}

const maxFloat = math.MaxFloat64

func validatePositive(field string, v int) error {
	return validation.ValidateRange(paramsOp, field, float64(v), 1, maxFloat)
}

// validateFraction accepts (0, 1].
func validateFraction(field string, v float64) error {
	if v == 0 {
		return errors.NewValidationError(paramsOp, field, "must be greater than 0")
	}
	return validation.ValidateRange(paramsOp, field, v, 0, 1)
}

func validateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// New builds an unfitted estimator from a hyperparameter variant.
func New(p Params) (Estimator, error) {
	if p == nil {
		return nil, errors.NewInvalidInputError(paramsOp, "params must not be nil")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	switch p := p.(type) {
	case RidgeParams:
		return &Ridge{Hyper: p}, nil
	case LassoParams:
		return &ElasticNet{Hyper: ElasticNetParams{Alpha: p.Alpha, L1Ratio: 1, MaxIter: p.MaxIter, Tol: p.Tol}, Variant: KindLasso}, nil
	case ElasticNetParams:
		return &ElasticNet{Hyper: p, Variant: KindElasticNet}, nil
	case RandomForestParams:
		return &RandomForest{Hyper: p}, nil
	case GradientBoostingParams:
		return &GradientBoosting{Hyper: p}, nil
	case XGBoostParams:
		return &XGBoost{Hyper: p}, nil
	default:
		return nil, errors.NewUnknownModelKindError(paramsOp, string(p.Kind()), KindNames())
	}
}

// ParamsFor maps the configuration union onto the variant of kind.
// Zero fields fall back to the kind's defaults.
func ParamsFor(kind Kind, hp config.Hyperparameters) (Params, error) {
	defaults, _ := config.DefaultModelConfigs().For(string(kind))
	hp = config.MergeHyperparameters(hp, defaults)

	switch kind {
	case KindRidge:
		return RidgeParams{Alpha: hp.Alpha}, nil
	case KindLasso:
		return LassoParams{Alpha: hp.Alpha, MaxIter: hp.MaxIter, Tol: hp.Tol}, nil
	case KindElasticNet:
		return ElasticNetParams{Alpha: hp.Alpha, L1Ratio: hp.L1Ratio, MaxIter: hp.MaxIter, Tol: hp.Tol}, nil
	case KindRandomForest:
		return RandomForestParams{
			NEstimators:     hp.NEstimators,
			MaxDepth:        hp.MaxDepth,
			MinSamplesSplit: hp.MinSamplesSplit,
			MinSamplesLeaf:  hp.MinSamplesLeaf,
			MaxFeatures:     hp.MaxFeatures,
			RandomState:     hp.RandomState,
			NJobs:           hp.NJobs,
		}, nil
	case KindGradientBoosting:
		return GradientBoostingParams{
			NEstimators:     hp.NEstimators,
			MaxDepth:        hp.MaxDepth,
			MinSamplesSplit: hp.MinSamplesSplit,
			MinSamplesLeaf:  hp.MinSamplesLeaf,
			LearningRate:    hp.LearningRate,
			Subsample:       hp.Subsample,
			RandomState:     hp.RandomState,
		}, nil
	case KindXGBoost:
		return XGBoostParams{
			NEstimators:     hp.NEstimators,
			MaxDepth:        hp.MaxDepth,
			LearningRate:    hp.LearningRate,
			Lambda:          hp.Lambda,
			Gamma:           hp.Gamma,
			MinChildWeight:  hp.MinChildWeight,
			Subsample:       hp.Subsample,
			ColsampleByTree: hp.ColsampleByTree,
			RandomState:     hp.RandomState,
			NJobs:           hp.NJobs,
		}, nil
	default:
		return nil, errors.NewUnknownModelKindError("ParamsFor", string(kind), KindNames())
	}
}

// Create is the string entry point: it parses name and builds an unfitted
// estimator from the configuration union.
func Create(name string, hp config.Hyperparameters) (Estimator, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	p, err := ParamsFor(kind, hp)
	if err != nil {
		return nil, err
	}
	return New(p)
}
