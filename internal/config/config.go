// Package config provides configuration for the track popularity pipeline:
// feature schema, split and cross-validation settings, per-model
// hyperparameters, category thresholds and runtime options.
//
// There is no global instance. Callers build a Config with NewConfig,
// LoadFromFile or LoadFromEnv and pass it explicitly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration
type Config struct {
	Data       DataConfig     `json:"data" yaml:"data"`
	Features   FeatureSchema  `json:"features" yaml:"features"`
	Split      SplitConfig    `json:"split" yaml:"split"`
	Models     ModelConfigs   `json:"models" yaml:"models"`
	Categories CategoryConfig `json:"categories" yaml:"categories"`
	Artifacts  ArtifactConfig `json:"artifacts" yaml:"artifacts"`
	Logging    LoggingConfig  `json:"logging" yaml:"logging"`
	Parallel   ParallelConfig `json:"parallel" yaml:"parallel"`

	MetricsCollection bool `json:"metrics_collection" yaml:"metrics_collection"` // Enable per-operation timing
}

// DataConfig locates the input table.
type DataConfig struct {
	Path       string `json:"path" yaml:"path"`
	SampleRows int    `json:"sample_rows" yaml:"sample_rows"` // Rows synthesized when Path is missing
}

// FeatureSchema names the model inputs and the regression target.
type FeatureSchema struct {
	Numerical   []string `json:"numerical" yaml:"numerical"`
	Categorical []string `json:"categorical" yaml:"categorical"`
	Target      string   `json:"target" yaml:"target"`
}

// Columns returns every feature name, numerical first.
func (s FeatureSchema) Columns() []string {
	out := make([]string, 0, len(s.Numerical)+len(s.Categorical))
	out = append(out, s.Numerical...)
	return append(out, s.Categorical...)
}

// Validate checks that the schema declares at least one feature, no feature
// twice and a target that is not also a feature.
func (s FeatureSchema) Validate() error {
	if len(s.Numerical)+len(s.Categorical) == 0 {
		return fmt.Errorf("feature schema must declare at least one feature")
	}
	if s.Target == "" {
		return fmt.Errorf("feature schema must declare a target")
	}
	seen := make(map[string]bool)
	for _, name := range s.Columns() {
		if name == "" {
			return fmt.Errorf("feature names must not be empty")
		}
		if seen[name] {
			return fmt.Errorf("feature %q declared more than once", name)
		}
		seen[name] = true
	}
	if seen[s.Target] {
		return fmt.Errorf("target %q is also declared as a feature", s.Target)
	}
	return nil
}

// SplitConfig controls the train/test partition and cross-validation.
type SplitConfig struct {
	TestSize    float64 `json:"test_size" yaml:"test_size"`
	CVFolds     int     `json:"cv_folds" yaml:"cv_folds"` // 0 disables cross-validation
	RandomState int64   `json:"random_state" yaml:"random_state"`
}

// Hyperparameters is the union of every estimator's tunables. Each model
// reads only the fields it understands.
//
// A zero value for alpha, l1_ratio, tol, max_depth, lambda, gamma,
// min_child_weight, random_state or n_jobs is a real setting and is kept.
// The other fields have no usable zero and fall back to the model default.
// A set with every field zero takes the model defaults wholesale.
type Hyperparameters struct {
	Alpha           float64 `json:"alpha" yaml:"alpha"`
	L1Ratio         float64 `json:"l1_ratio" yaml:"l1_ratio"`
	MaxIter         int     `json:"max_iter" yaml:"max_iter"`
	Tol             float64 `json:"tol" yaml:"tol"`
	NEstimators     int     `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	MaxFeatures     float64 `json:"max_features" yaml:"max_features"` // Fraction of features per split
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	Subsample       float64 `json:"subsample" yaml:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree" yaml:"colsample_bytree"`
	Lambda          float64 `json:"lambda" yaml:"lambda"`
	Gamma           float64 `json:"gamma" yaml:"gamma"`
	MinChildWeight  float64 `json:"min_child_weight" yaml:"min_child_weight"`
	RandomState     int64   `json:"random_state" yaml:"random_state"`
	NJobs           int     `json:"n_jobs" yaml:"n_jobs"` // <= 0 uses all CPUs
}

// ModelConfigs holds hyperparameters per model kind.
type ModelConfigs struct {
	Ridge            Hyperparameters `json:"ridge" yaml:"ridge"`
	Lasso            Hyperparameters `json:"lasso" yaml:"lasso"`
	ElasticNet       Hyperparameters `json:"elasticnet" yaml:"elasticnet"`
	RandomForest     Hyperparameters `json:"random_forest" yaml:"random_forest"`
	GradientBoosting Hyperparameters `json:"gradient_boosting" yaml:"gradient_boosting"`
	XGBoost          Hyperparameters `json:"xgboost" yaml:"xgboost"`
}

// For returns the hyperparameters configured for a model kind name. Unknown
// names return false.
func (m ModelConfigs) For(kind string) (Hyperparameters, bool) {
	switch kind {
	case "ridge":
		return m.Ridge, true
	case "lasso":
		return m.Lasso, true
	case "elasticnet":
		return m.ElasticNet, true
	case "random_forest":
		return m.RandomForest, true
	case "gradient_boosting":
		return m.GradientBoosting, true
	case "xgboost":
		return m.XGBoost, true
	default:
		return Hyperparameters{}, false
	}
}

// CategoryConfig maps a predicted score to Low/Medium/High.
type CategoryConfig struct {
	LowBelow float64 `json:"low_below" yaml:"low_below"` // score < LowBelow is Low
	HighFrom float64 `json:"high_from" yaml:"high_from"` // score >= HighFrom is High
}

// ArtifactConfig locates saved pipelines.
type ArtifactConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// LoggingConfig selects the zap level.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// ParallelConfig sizes the worker pool used by cross-validation.
type ParallelConfig struct {
	Workers int `json:"workers" yaml:"workers"` // 0 = auto-detect
}

// Default configuration values
const (
	DefaultRandomState  = 42
	DefaultTestSize     = 0.2
	DefaultCVFolds      = 5
	DefaultSampleRows   = 1000
	DefaultLowBelow     = 40.0
	DefaultHighFrom     = 70.0
	DefaultTarget       = "popularity"
	DefaultDataPath     = "data/tracks.csv"
	DefaultArtifactsDir = "models"
	DefaultLogLevel     = "info"
)

// DefaultNumerical lists the audio features used by default.
func DefaultNumerical() []string {
	return []string{
		"danceability", "energy", "loudness", "speechiness", "acousticness",
		"instrumentalness", "liveness", "valence", "tempo", "duration_ms",
	}
}

// DefaultCategorical lists the musical categorical features used by default.
func DefaultCategorical() []string {
	return []string{"key", "mode", "time_signature"}
}

// DefaultModelConfigs returns the stock hyperparameters per model.
func DefaultModelConfigs() ModelConfigs {
	return ModelConfigs{
		Ridge:      Hyperparameters{Alpha: 1.0, RandomState: DefaultRandomState},
		Lasso:      Hyperparameters{Alpha: 1.0, MaxIter: 1000, Tol: 1e-4, RandomState: DefaultRandomState},
		ElasticNet: Hyperparameters{Alpha: 1.0, L1Ratio: 0.5, MaxIter: 1000, Tol: 1e-4, RandomState: DefaultRandomState},
		RandomForest: Hyperparameters{
			NEstimators: 100, MaxDepth: 10, MinSamplesSplit: 2, MinSamplesLeaf: 1,
			MaxFeatures: 1.0, RandomState: DefaultRandomState, NJobs: -1,
		},
		GradientBoosting: Hyperparameters{
			NEstimators: 100, MaxDepth: 5, LearningRate: 0.1, MinSamplesSplit: 2, MinSamplesLeaf: 1,
			Subsample: 1.0, RandomState: DefaultRandomState,
		},
		XGBoost: Hyperparameters{
			NEstimators: 100, MaxDepth: 5, LearningRate: 0.1, Lambda: 1.0, MinChildWeight: 1.0,
			Subsample: 1.0, ColsampleByTree: 1.0, RandomState: DefaultRandomState, NJobs: -1,
		},
	}
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		Data: DataConfig{Path: DefaultDataPath, SampleRows: DefaultSampleRows},
		Features: FeatureSchema{
			Numerical:   DefaultNumerical(),
			Categorical: DefaultCategorical(),
			Target:      DefaultTarget,
		},
		Split: SplitConfig{
			TestSize:    DefaultTestSize,
			CVFolds:     DefaultCVFolds,
			RandomState: DefaultRandomState,
		},
		Models:     DefaultModelConfigs(),
		Categories: CategoryConfig{LowBelow: DefaultLowBelow, HighFrom: DefaultHighFrom},
		Artifacts:  ArtifactConfig{Dir: DefaultArtifactsDir},
		Logging:    LoggingConfig{Level: DefaultLogLevel},
		Parallel:   ParallelConfig{Workers: 0},

		MetricsCollection: false,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if err := c.Features.Validate(); err != nil {
		return err
	}

	if c.Data.SampleRows <= 0 {
		return fmt.Errorf("SampleRows must be positive, got %d", c.Data.SampleRows)
	}

	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return fmt.Errorf("TestSize must be between 0 and 1 exclusive, got %g", c.Split.TestSize)
	}

	if c.Split.CVFolds < 0 || c.Split.CVFolds == 1 {
		return fmt.Errorf("CVFolds must be 0 (disabled) or at least 2, got %d", c.Split.CVFolds)
	}

	if c.Categories.LowBelow > c.Categories.HighFrom {
		return fmt.Errorf("category thresholds out of order: low_below %g > high_from %g",
			c.Categories.LowBelow, c.Categories.HighFrom)
	}

	if c.Parallel.Workers < 0 {
		return fmt.Errorf("Workers must be non-negative, got %d", c.Parallel.Workers)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.Data.Path == "" {
		c.Data.Path = defaults.Data.Path
	}
	if c.Data.SampleRows == 0 {
		c.Data.SampleRows = defaults.Data.SampleRows
	}
	if len(c.Features.Numerical) == 0 && len(c.Features.Categorical) == 0 {
		c.Features.Numerical = defaults.Features.Numerical
		c.Features.Categorical = defaults.Features.Categorical
	}
	if c.Features.Target == "" {
		c.Features.Target = defaults.Features.Target
	}
	if c.Split == (SplitConfig{}) {
		c.Split = defaults.Split
	}
	if c.Split.TestSize == 0 {
		c.Split.TestSize = defaults.Split.TestSize
	}
	if c.Categories == (CategoryConfig{}) {
		c.Categories = defaults.Categories
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = defaults.Artifacts.Dir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}

	c.Models.Ridge = MergeHyperparameters(c.Models.Ridge, defaults.Models.Ridge)
	c.Models.Lasso = MergeHyperparameters(c.Models.Lasso, defaults.Models.Lasso)
	c.Models.ElasticNet = MergeHyperparameters(c.Models.ElasticNet, defaults.Models.ElasticNet)
	c.Models.RandomForest = MergeHyperparameters(c.Models.RandomForest, defaults.Models.RandomForest)
	c.Models.GradientBoosting = MergeHyperparameters(c.Models.GradientBoosting, defaults.Models.GradientBoosting)
	c.Models.XGBoost = MergeHyperparameters(c.Models.XGBoost, defaults.Models.XGBoost)

	// Inside a set split section CVFolds and RandomState keep their zero
	// values, as do Workers and MetricsCollection: zero is a meaningful
	// setting for each of them.

	return c
}

// MergeHyperparameters fills the fields of hp that have no usable zero from
// defaults. An all-zero hp is replaced by defaults.
func MergeHyperparameters(hp, defaults Hyperparameters) Hyperparameters {
	if hp == (Hyperparameters{}) {
		return defaults
	}
	if hp.MaxIter == 0 {
		hp.MaxIter = defaults.MaxIter
	}
	if hp.NEstimators == 0 {
		hp.NEstimators = defaults.NEstimators
	}
	if hp.MinSamplesSplit == 0 {
		hp.MinSamplesSplit = defaults.MinSamplesSplit
	}
	if hp.MinSamplesLeaf == 0 {
		hp.MinSamplesLeaf = defaults.MinSamplesLeaf
	}
	if hp.MaxFeatures == 0 {
		hp.MaxFeatures = defaults.MaxFeatures
	}
	if hp.LearningRate == 0 {
		hp.LearningRate = defaults.LearningRate
	}
	if hp.Subsample == 0 {
		hp.Subsample = defaults.Subsample
	}
	if hp.ColsampleByTree == 0 {
		hp.ColsampleByTree = defaults.ColsampleByTree
	}
	return hp
}

// LoadFromJSON loads configuration from JSON data. Keys present in data
// override NewConfig; absent keys keep their defaults.
func LoadFromJSON(data []byte) (Config, error) {
	config := NewConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromYAML loads configuration from YAML data. Keys present in data
// override NewConfig; absent keys keep their defaults.
func LoadFromYAML(data []byte) (Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing YAML configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a file (supports JSON and YAML)
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		config, err = LoadFromJSON(data)
	case ".yaml", ".yml":
		config, err = LoadFromYAML(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config, nil
}

// LoadFromEnv loads configuration from environment variables on top of the
// defaults. Unparseable values are ignored.
func LoadFromEnv() Config {
	return ApplyEnv(NewConfig())
}

// ApplyEnv overrides fields of config from TRACKPOP_* environment variables.
func ApplyEnv(config Config) Config {
	if val := os.Getenv("TRACKPOP_DATA_PATH"); val != "" {
		config.Data.Path = val
	}

	if val := os.Getenv("TRACKPOP_SAMPLE_ROWS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Data.SampleRows = parsed
		}
	}

	if val := os.Getenv("TRACKPOP_TARGET"); val != "" {
		config.Features.Target = val
	}

	if val := os.Getenv("TRACKPOP_TEST_SIZE"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Split.TestSize = parsed
		}
	}

	if val := os.Getenv("TRACKPOP_CV_FOLDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Split.CVFolds = parsed
		}
	}

	if val := os.Getenv("TRACKPOP_RANDOM_STATE"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Split.RandomState = parsed
		}
	}

	if val := os.Getenv("TRACKPOP_LOW_BELOW"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Categories.LowBelow = parsed
		}
	}

	if val := os.Getenv("TRACKPOP_HIGH_FROM"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Categories.HighFrom = parsed
		}
	}

	if val := os.Getenv("TRACKPOP_ARTIFACTS_DIR"); val != "" {
		config.Artifacts.Dir = val
	}

	if val := os.Getenv("TRACKPOP_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}

	if val := os.Getenv("TRACKPOP_WORKERS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Parallel.Workers = parsed
		}
	}

	if val := os.Getenv("TRACKPOP_METRICS_COLLECTION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.MetricsCollection = parsed
		}
	}

	return config
}
