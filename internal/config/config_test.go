package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/trackpop/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultValues(t *testing.T) {
	cfg := config.NewConfig()

	assert.Equal(t, "popularity", cfg.Features.Target)
	assert.Len(t, cfg.Features.Numerical, 10)
	assert.Equal(t, []string{"key", "mode", "time_signature"}, cfg.Features.Categorical)
	assert.InDelta(t, 0.2, cfg.Split.TestSize, 1e-12)
	assert.Equal(t, 5, cfg.Split.CVFolds)
	assert.Equal(t, int64(42), cfg.Split.RandomState)
	assert.Equal(t, 1000, cfg.Data.SampleRows)
	assert.InDelta(t, 40.0, cfg.Categories.LowBelow, 1e-12)
	assert.InDelta(t, 70.0, cfg.Categories.HighFrom, 1e-12)
	assert.InDelta(t, 1.0, cfg.Models.Ridge.Alpha, 1e-12)
	assert.InDelta(t, 0.5, cfg.Models.ElasticNet.L1Ratio, 1e-12)
	assert.Equal(t, 100, cfg.Models.RandomForest.NEstimators)
	assert.Equal(t, 10, cfg.Models.RandomForest.MaxDepth)
	assert.Equal(t, 5, cfg.Models.XGBoost.MaxDepth)
	assert.InDelta(t, 0.1, cfg.Models.GradientBoosting.LearningRate, 1e-12)
	assert.False(t, cfg.MetricsCollection)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *config.Config)
		expectedError string
	}{
		{
			name:          "valid config",
			mutate:        func(c *config.Config) {},
			expectedError: "",
		},
		{
			name:          "test size out of range",
			mutate:        func(c *config.Config) { c.Split.TestSize = 1.5 },
			expectedError: "TestSize must be between 0 and 1 exclusive, got 1.5",
		},
		{
			name:          "single fold",
			mutate:        func(c *config.Config) { c.Split.CVFolds = 1 },
			expectedError: "CVFolds must be 0 (disabled) or at least 2, got 1",
		},
		{
			name:          "target is a feature",
			mutate:        func(c *config.Config) { c.Features.Target = "energy" },
			expectedError: `target "energy" is also declared as a feature`,
		},
		{
			name: "no features",
			mutate: func(c *config.Config) {
				c.Features.Numerical = nil
				c.Features.Categorical = nil
			},
			expectedError: "feature schema must declare at least one feature",
		},
		{
			name: "duplicate feature",
			mutate: func(c *config.Config) {
				c.Features.Categorical = append(c.Features.Categorical, "tempo")
			},
			expectedError: `feature "tempo" declared more than once`,
		},
		{
			name: "thresholds reversed",
			mutate: func(c *config.Config) {
				c.Categories.LowBelow = 80
			},
			expectedError: "category thresholds out of order: low_below 80 > high_from 70",
		},
		{
			name:          "bad log level",
			mutate:        func(c *config.Config) { c.Logging.Level = "trace" },
			expectedError: `unsupported log level "trace"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.expectedError, err.Error())
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := config.Config{
		Features: config.FeatureSchema{Numerical: []string{"energy"}},
		Models: config.ModelConfigs{
			RandomForest: config.Hyperparameters{NEstimators: 10},
		},
	}.WithDefaults()

	assert.Equal(t, []string{"energy"}, cfg.Features.Numerical)
	assert.Empty(t, cfg.Features.Categorical)
	assert.Equal(t, "popularity", cfg.Features.Target)
	assert.Equal(t, 10, cfg.Models.RandomForest.NEstimators)
	assert.Equal(t, 0, cfg.Models.RandomForest.MaxDepth, "zero depth is unlimited, not unset")
	assert.Equal(t, 2, cfg.Models.RandomForest.MinSamplesSplit)
	assert.Equal(t, config.DefaultModelConfigs().XGBoost, cfg.Models.XGBoost, "unset section takes defaults")
	assert.Equal(t, config.NewConfig().Split, cfg.Split, "unset split takes defaults")

	cfg = config.Config{Split: config.SplitConfig{TestSize: 0.3}}.WithDefaults()
	assert.Equal(t, 0, cfg.Split.CVFolds, "zero folds stays disabled")
	assert.Equal(t, int64(0), cfg.Split.RandomState)
}

func TestMergeHyperparameters(t *testing.T) {
	defaults := config.DefaultModelConfigs().XGBoost

	tests := []struct {
		name     string
		hp       config.Hyperparameters
		expected config.Hyperparameters
	}{
		{
			name:     "all zero takes defaults",
			hp:       config.Hyperparameters{},
			expected: defaults,
		},
		{
			name: "meaningful zeros are kept",
			hp:   config.Hyperparameters{NEstimators: 20},
			expected: config.Hyperparameters{
				NEstimators: 20, LearningRate: 0.1, Subsample: 1.0, ColsampleByTree: 1.0,
				MinSamplesSplit: defaults.MinSamplesSplit, MinSamplesLeaf: defaults.MinSamplesLeaf,
				MaxFeatures: defaults.MaxFeatures, MaxIter: defaults.MaxIter,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, config.MergeHyperparameters(tt.hp, defaults))
		})
	}
}

func TestModelConfigs_For(t *testing.T) {
	models := config.DefaultModelConfigs()

	hp, ok := models.For("xgboost")
	require.True(t, ok)
	assert.InDelta(t, 1.0, hp.Lambda, 1e-12)

	_, ok = models.For("svm")
	assert.False(t, ok)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "trackpop.yaml")
		content := `
features:
  numerical: [energy, tempo]
  categorical: [mode]
  target: track_popularity
split:
  test_size: 0.25
  cv_folds: 3
models:
  ridge:
    alpha: 0.5
categories:
  low_below: 30
  high_from: 60
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "track_popularity", cfg.Features.Target)
		assert.Equal(t, []string{"energy", "tempo"}, cfg.Features.Numerical)
		assert.InDelta(t, 0.25, cfg.Split.TestSize, 1e-12)
		assert.Equal(t, 3, cfg.Split.CVFolds)
		assert.InDelta(t, 0.5, cfg.Models.Ridge.Alpha, 1e-12)
		assert.InDelta(t, 1.0, cfg.Models.Lasso.Alpha, 1e-12)
		assert.InDelta(t, 30.0, cfg.Categories.LowBelow, 1e-12)
		require.NoError(t, cfg.Validate())
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "trackpop.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"split": {"test_size": 0.3}, "metrics_collection": true}`), 0o600))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.3, cfg.Split.TestSize, 1e-12)
		assert.True(t, cfg.MetricsCollection)
	})

	t.Run("explicit zeros are kept", func(t *testing.T) {
		path := filepath.Join(dir, "zeros.yaml")
		content := `
split:
  random_state: 0
models:
  ridge:
    alpha: 0
  random_forest:
    max_depth: 0
  xgboost:
    lambda: 0
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, cfg.Models.Ridge.Alpha, 0)
		assert.Equal(t, 0, cfg.Models.RandomForest.MaxDepth)
		assert.Equal(t, 100, cfg.Models.RandomForest.NEstimators, "absent keys keep defaults")
		assert.InDelta(t, 0.0, cfg.Models.XGBoost.Lambda, 0)
		assert.InDelta(t, 0.1, cfg.Models.XGBoost.LearningRate, 1e-12)
		assert.Equal(t, int64(0), cfg.Split.RandomState)
		assert.Equal(t, config.DefaultCVFolds, cfg.Split.CVFolds, "omitted cv_folds keeps the default")
		require.NoError(t, cfg.Validate())
	})

	t.Run("json explicit zero folds", func(t *testing.T) {
		path := filepath.Join(dir, "nocv.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"split": {"cv_folds": 0}, "models": {"ridge": {"alpha": 0}}}`), 0o600))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Split.CVFolds)
		assert.InDelta(t, config.DefaultTestSize, cfg.Split.TestSize, 1e-12)
		assert.InDelta(t, 0.0, cfg.Models.Ridge.Alpha, 0)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "trackpop.toml")
		require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

		_, err := config.LoadFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported config file format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadFromFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRACKPOP_TARGET", "track_popularity")
	t.Setenv("TRACKPOP_TEST_SIZE", "0.3")
	t.Setenv("TRACKPOP_CV_FOLDS", "not-a-number")
	t.Setenv("TRACKPOP_METRICS_COLLECTION", "true")
	t.Setenv("TRACKPOP_LOW_BELOW", "35")

	cfg := config.LoadFromEnv()

	assert.Equal(t, "track_popularity", cfg.Features.Target)
	assert.InDelta(t, 0.3, cfg.Split.TestSize, 1e-12)
	assert.Equal(t, 5, cfg.Split.CVFolds, "unparseable values are ignored")
	assert.True(t, cfg.MetricsCollection)
	assert.InDelta(t, 35.0, cfg.Categories.LowBelow, 1e-12)
}
