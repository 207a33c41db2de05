package trackpop

import (
	"fmt"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/artifact"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/dataset"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/logging"
	"github.com/paveg/trackpop/internal/model"
	"github.com/paveg/trackpop/internal/monitoring"
	"github.com/paveg/trackpop/internal/parallel"
	"github.com/paveg/trackpop/internal/preprocess"
	"github.com/paveg/trackpop/internal/validation"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// MetricsCollector records per-operation timings when enabled.
type MetricsCollector = monitoring.MetricsCollector

// NewMetricsCollector creates a collector. A disabled collector records
// nothing.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return monitoring.NewMetricsCollector(enabled)
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Predictor) { p.logger = logger }
}

// WithMetrics records load, fit, evaluate, cross-validate and predict
// timings in mc.
func WithMetrics(mc *MetricsCollector) Option {
	return func(p *Predictor) { p.metrics = mc }
}

// WithAllocator sets the Arrow allocator for tables the Predictor creates.
func WithAllocator(mem memory.Allocator) Option {
	return func(p *Predictor) { p.mem = mem }
}

// EvaluationResult reports one training run.
type EvaluationResult struct {
	Kind         Kind         `json:"model"`
	TrainSize    int          `json:"train_size"`
	TestSize     int          `json:"test_size"`
	Metrics      Metrics      `json:"metrics"`
	Importances  []Importance `json:"feature_importance,omitempty"`
	FeatureNames []string     `json:"feature_names"`
}

// Predictor trains, stores and serves one fitted pipeline per model kind.
// Predict is safe for concurrent use; Train and Load replace a stored
// pipeline atomically.
type Predictor struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *monitoring.MetricsCollector
	mem     memory.Allocator

	mu        sync.RWMutex
	pipelines map[model.Kind]*artifact.Bundle
}

// New creates a Predictor. Unset configuration values take their defaults
// and the result is validated.
func New(cfg Config, opts ...Option) (*Predictor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Predictor{
		cfg:       cfg,
		mem:       memory.NewGoAllocator(),
		pipelines: make(map[model.Kind]*artifact.Bundle),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger)
	return p, nil
}

// Config returns the configuration in effect.
func (p *Predictor) Config() Config {
	return p.cfg
}

// DataInfo is the shape, column types and null counts of a table.
type DataInfo = dataset.Info

// Dataset is a cleaned table split into features and target.
type Dataset struct {
	Table             *DataFrame // owns the column memory
	Features          *DataFrame // view over Table
	Target            []float64
	Path              string
	Synthetic         bool
	Raw               DataInfo // before cleaning
	NullRowsRemoved   int
	DuplicatesRemoved int
}

// Release frees the table.
func (d *Dataset) Release() {
	if d != nil {
		d.Table.Release()
	}
}

// LoadDataset reads the configured data file, or synthesizes tracks when it
// is missing, then drops incomplete and duplicate rows.
func (p *Predictor) LoadDataset() (*Dataset, error) {
	loader := dataset.NewLoader(p.cfg,
		dataset.WithLogger(p.logger),
		dataset.WithAllocator(p.mem),
		dataset.WithMetrics(p.metrics))

	prepared, err := loader.Prepare()
	if err != nil {
		return nil, err
	}
	return &Dataset{
		Table:             &DataFrame{df: prepared.Table},
		Features:          &DataFrame{df: prepared.Features},
		Target:            prepared.Target,
		Path:              prepared.Source.Path,
		Synthetic:         prepared.Source.Synthetic,
		Raw:               prepared.Raw,
		NullRowsRemoved:   prepared.Report.NullRowsRemoved,
		DuplicatesRemoved: prepared.Report.DuplicatesRemoved,
	}, nil
}

// SplitFeaturesTarget selects the configured feature columns of df and
// returns the target column as float64. The features share memory with df.
func (p *Predictor) SplitFeaturesTarget(df *DataFrame) (*DataFrame, []float64, error) {
	features, target, err := dataset.SplitFeaturesTarget(df.df, p.cfg.Features)
	if err != nil {
		return nil, nil, err
	}
	return &DataFrame{df: features}, target, nil
}

// Train fits the named model on a seeded train/test split of features and
// target. The preprocessing transform is fitted on the training partition
// only. Metrics carry train_ and test_ prefixes, plus cv_ aggregates when
// cross-validation is configured. The fitted pipeline replaces any pipeline
// already stored under the kind.
func (p *Predictor) Train(features *DataFrame, target []float64, kind string) (*EvaluationResult, error) {
	const op = "Train"

	k, err := model.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	if features == nil || features.df == nil {
		return nil, errors.NewInvalidInputError(op, "features are nil")
	}
	if err := validation.ValidateLength(features.Len(), len(target), op, "target"); err != nil {
		return nil, err
	}

	hp, _ := p.cfg.Models.For(string(k))
	trainer, err := model.NewTrainer(string(k), hp)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := dataset.TrainTestSplit(features.Len(), p.cfg.Split.TestSize, p.cfg.Split.RandomState)
	if err != nil {
		return nil, err
	}
	trainDF, err := features.df.Take(trainIdx)
	if err != nil {
		return nil, err
	}
	defer trainDF.Release()
	testDF, err := features.df.Take(testIdx)
	if err != nil {
		return nil, err
	}
	defer testDF.Release()
	yTrain, yTest := pick(target, trainIdx), pick(target, testIdx)

	transform, XTrain, err := preprocess.New(p.cfg.Features).FitTransform(trainDF)
	if err != nil {
		return nil, err
	}
	XTest, err := transform.Transform(testDF)
	if err != nil {
		return nil, err
	}

	err = p.metrics.RecordOperation("fit", string(k), len(trainIdx), func() error {
		return trainer.Fit(XTrain, yTrain)
	})
	if err != nil {
		return nil, err
	}

	metrics, err := p.evaluate(trainer, XTrain, yTrain, XTest, yTest)
	if err != nil {
		return nil, err
	}
	if folds := p.cfg.Split.CVFolds; folds >= 2 {
		cv, err := p.crossValidate(trainer, trainDF, yTrain, folds)
		if err != nil {
			return nil, err
		}
		metrics.Merge(cv.Metrics())
	}

	names := transform.FeatureNames()
	importances, _, err := trainer.FeatureImportance(names)
	if err != nil {
		return nil, err
	}

	p.store(artifact.New(p.cfg.Features, transform, trainer.Estimator(), metrics))

	p.logger.Info("trained model",
		zap.Stringer("model", k),
		zap.Int("train_rows", len(trainIdx)),
		zap.Int("test_rows", len(testIdx)),
		zap.Int("features", len(names)),
		zap.Float64("train_r2", metrics["train_"+model.MetricR2]),
		zap.Float64("test_r2", metrics["test_"+model.MetricR2]),
		zap.Float64("test_rmse", metrics["test_"+model.MetricRMSE]))

	return &EvaluationResult{
		Kind:         k,
		TrainSize:    len(trainIdx),
		TestSize:     len(testIdx),
		Metrics:      metrics.Clone(),
		Importances:  importances,
		FeatureNames: names,
	}, nil
}

func (p *Predictor) evaluate(trainer *model.Trainer, XTrain *mat.Dense, yTrain []float64, XTest *mat.Dense, yTest []float64) (Metrics, error) {
	var metrics Metrics
	err := p.metrics.RecordOperation("evaluate", string(trainer.Kind()), len(yTrain)+len(yTest), func() error {
		train, err := trainer.Evaluate(XTrain, yTrain)
		if err != nil {
			return err
		}
		test, err := trainer.Evaluate(XTest, yTest)
		if err != nil {
			return err
		}
		metrics = train.WithPrefix("train_").Merge(test.WithPrefix("test_"))
		return nil
	})
	return metrics, err
}

// crossValidate scores trainer's hyperparameters on folds of the training
// partition, refitting the preprocessing transform on each fold's training
// rows.
func (p *Predictor) crossValidate(trainer *model.Trainer, features *dataframe.DataFrame, y []float64, folds int) (*model.CVResult, error) {
	pool := parallel.NewWorkerPool(p.cfg.Parallel.Workers)
	defer pool.Close()

	foldData := func(train, test []int) (*mat.Dense, *mat.Dense, error) {
		fitDF, err := features.Take(train)
		if err != nil {
			return nil, nil, err
		}
		defer fitDF.Release()
		valDF, err := features.Take(test)
		if err != nil {
			return nil, nil, err
		}
		defer valDF.Release()

		transform, XFit, err := preprocess.New(p.cfg.Features).FitTransform(fitDF)
		if err != nil {
			return nil, nil, err
		}
		XVal, err := transform.Transform(valDF)
		if err != nil {
			return nil, nil, err
		}
		return XFit, XVal, nil
	}

	var cv *model.CVResult
	err := p.metrics.RecordOperation("cross_validate", string(trainer.Kind()), len(y), func() error {
		var err error
		cv, err = trainer.CrossValidateFolds(y, folds, p.cfg.Split.RandomState, pool, foldData)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cross-validating %s: %w", trainer.Kind(), err)
	}
	p.logger.Debug("cross-validated model",
		zap.Stringer("model", trainer.Kind()),
		zap.Int("folds", folds),
		zap.Float64("cv_r2_mean", cv.Mean(model.MetricR2)),
		zap.Float64("cv_r2_std", cv.Std(model.MetricR2)))
	return cv, nil
}

// TrainAll trains every named kind, or every supported kind when none are
// named, on the same split. It returns the comparison and the kind with the
// best test R².
func (p *Predictor) TrainAll(features *DataFrame, target []float64, kinds ...string) (*Comparison, Kind, error) {
	if len(kinds) == 0 {
		kinds = model.KindNames()
	}

	comparison := model.NewComparison()
	for _, kind := range kinds {
		result, err := p.Train(features, target, kind)
		if err != nil {
			return nil, "", err
		}
		comparison.Add(result.Kind, result.Metrics)
	}

	best, score, err := comparison.Best("test_" + model.MetricR2)
	if err != nil {
		return nil, "", err
	}
	p.logger.Info("compared models",
		zap.Int("models", comparison.Len()),
		zap.Stringer("best", best),
		zap.Float64("test_r2", score))
	return comparison, best, nil
}

// Predict scores features with the pipeline stored under kind. The stored
// transform is applied as fitted and never refitted.
func (p *Predictor) Predict(features *DataFrame, kind string) ([]float64, error) {
	bundle, err := p.pipeline("Predict", kind)
	if err != nil {
		return nil, err
	}
	if features == nil || features.df == nil {
		return nil, errors.NewInvalidInputError("Predict", "features are nil")
	}

	X, err := bundle.Transform.Transform(features.df)
	if err != nil {
		return nil, err
	}

	var preds []float64
	err = p.metrics.RecordOperation("predict", string(bundle.Kind), features.Len(), func() error {
		var err error
		preds, err = bundle.Estimator.Predict(X)
		return err
	})
	return preds, err
}

// Metrics returns the evaluation metrics stored with kind's pipeline.
func (p *Predictor) Metrics(kind string) (Metrics, error) {
	bundle, err := p.pipeline("Metrics", kind)
	if err != nil {
		return nil, err
	}
	return bundle.Metadata.Metrics.Clone(), nil
}

// FeatureImportance ranks the transformed features of kind's pipeline. The
// bool is false for linear kinds, which report coefficients instead.
func (p *Predictor) FeatureImportance(kind string) ([]Importance, bool, error) {
	bundle, err := p.pipeline("FeatureImportance", kind)
	if err != nil {
		return nil, false, err
	}
	imp, ok := model.FeatureImportance(bundle.Estimator, bundle.Metadata.FeatureNames)
	return imp, ok, nil
}

// Save writes kind's pipeline to path. An empty path saves under the
// configured artifact directory.
func (p *Predictor) Save(kind, path string) (string, error) {
	bundle, err := p.pipeline("Save", kind)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = artifact.DefaultPath(p.cfg.Artifacts.Dir, bundle.Kind)
	}
	if err := artifact.Save(path, bundle); err != nil {
		return "", err
	}
	p.logger.Info("saved model",
		zap.Stringer("model", bundle.Kind),
		zap.String("path", path),
		zap.Stringer("id", bundle.Metadata.ID))
	return path, nil
}

// Load reads a pipeline from path and stores it under its kind. A non-empty
// kind must match the artifact's. It returns the loaded kind.
func (p *Predictor) Load(path, kind string) (Kind, error) {
	const op = "Load"

	bundle, err := artifact.Load(path)
	if err != nil {
		return "", err
	}
	if kind != "" {
		k, err := model.ParseKind(kind)
		if err != nil {
			return "", err
		}
		if k != bundle.Kind {
			return "", errors.NewInvalidInputError(op,
				fmt.Sprintf("artifact %s holds a %s model, not %s", path, bundle.Kind, k))
		}
	}

	p.store(bundle)
	p.logger.Info("loaded model",
		zap.Stringer("model", bundle.Kind),
		zap.String("path", path),
		zap.Stringer("id", bundle.Metadata.ID),
		zap.Time("created_at", bundle.Metadata.CreatedAt),
		zap.String("version", bundle.Metadata.Version))
	return bundle.Kind, nil
}

// Models returns the kinds with a stored pipeline, sorted by name.
func (p *Predictor) Models() []Kind {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Kind, 0, len(p.pipelines))
	for k := range p.pipelines {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Predictor) store(bundle *artifact.Bundle) {
	p.mu.Lock()
	p.pipelines[bundle.Kind] = bundle
	p.mu.Unlock()
}

func (p *Predictor) pipeline(op, kind string) (*artifact.Bundle, error) {
	k, err := model.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	bundle, ok := p.pipelines[k]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.NewModelNotTrainedError(op, string(k))
	}
	return bundle, nil
}

func pick(values []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = values[idx]
	}
	return out
}
