package artifact_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/artifact"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/dataset"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/model"
	"github.com/paveg/trackpop/internal/preprocess"
	"github.com/paveg/trackpop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type pipeline struct {
	schema    config.FeatureSchema
	features  *dataframe.DataFrame
	transform *preprocess.FittedTransform
	X         *mat.Dense
	y         []float64
}

func fitPipeline(t *testing.T) pipeline {
	t.Helper()
	mem := memory.NewGoAllocator()
	df := testutil.NewTrackFrame(t, mem, testutil.WithRows(120))
	t.Cleanup(df.Release)

	schema := config.NewConfig().Features
	features, y, err := dataset.SplitFeaturesTarget(df, schema)
	require.NoError(t, err)

	ft, X, err := preprocess.New(schema).FitTransform(features)
	require.NoError(t, err)
	return pipeline{schema: schema, features: features, transform: ft, X: X, y: y}
}

func smallParams() []model.Params {
	return []model.Params{
		model.RidgeParams{Alpha: 1},
		model.LassoParams{Alpha: 0.1, MaxIter: 500, Tol: 1e-4},
		model.ElasticNetParams{Alpha: 0.1, L1Ratio: 0.5, MaxIter: 500, Tol: 1e-4},
		model.RandomForestParams{NEstimators: 4, MaxDepth: 4, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: 0.5, RandomState: 1, NJobs: 2},
		model.GradientBoostingParams{NEstimators: 5, MaxDepth: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1, LearningRate: 0.1, Subsample: 0.8, RandomState: 1},
		model.XGBoostParams{NEstimators: 5, MaxDepth: 3, LearningRate: 0.3, Lambda: 1, MinChildWeight: 1, Subsample: 1, ColsampleByTree: 0.8, RandomState: 1, NJobs: 1},
	}
}

func TestWriteReadEveryKind(t *testing.T) {
	p := fitPipeline(t)

	for _, params := range smallParams() {
		t.Run(string(params.Kind()), func(t *testing.T) {
			est, err := model.New(params)
			require.NoError(t, err)
			require.NoError(t, est.Fit(p.X, p.y))
			want, err := est.Predict(p.X)
			require.NoError(t, err)

			bundle := artifact.New(p.schema, p.transform, est, model.Metrics{"test_r2": 0.5})

			var buf bytes.Buffer
			require.NoError(t, artifact.Write(&buf, bundle))
			assert.Equal(t, artifact.Magic, buf.String()[:len(artifact.Magic)])

			got, err := artifact.Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, params.Kind(), got.Kind)
			assert.Equal(t, params, got.Estimator.Params())
			assert.Equal(t, bundle.Metadata.ID, got.Metadata.ID)
			assert.True(t, bundle.Metadata.CreatedAt.Equal(got.Metadata.CreatedAt))
			assert.Equal(t, p.transform.FeatureNames(), got.Metadata.FeatureNames)
			assert.Equal(t, p.schema, got.Metadata.Schema)
			assert.InDelta(t, 0.5, got.Metadata.Metrics["test_r2"], 0)

			X, err := got.Transform.Transform(p.features)
			require.NoError(t, err)
			preds, err := got.Estimator.Predict(X)
			require.NoError(t, err)
			assert.Equal(t, want, preds)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	p := fitPipeline(t)
	est, err := model.New(model.RidgeParams{Alpha: 1})
	require.NoError(t, err)
	require.NoError(t, est.Fit(p.X, p.y))

	path := artifact.DefaultPath(filepath.Join(t.TempDir(), "nested", "models"), model.KindRidge)
	assert.Equal(t, "ridge.tpop", filepath.Base(path))
	require.NoError(t, artifact.Save(path, artifact.New(p.schema, p.transform, est, nil)))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files are renamed away")

	got, err := artifact.Load(path)
	require.NoError(t, err)
	want, err := est.Predict(p.X)
	require.NoError(t, err)
	preds, err := got.Estimator.Predict(p.X)
	require.NoError(t, err)
	assert.Equal(t, want, preds)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		_, err := artifact.Load(filepath.Join(dir, "absent.tpop"))
		assert.ErrorIs(t, err, errors.ErrArtifactNotFound)
	})

	t.Run("unopenable path", func(t *testing.T) {
		parent := filepath.Join(dir, "regular-file")
		require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))

		for _, path := range []string{"bad\x00name.tpop", filepath.Join(parent, "child.tpop")} {
			_, err := artifact.Load(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrArtifactNotFound, path)
		}
	})

	t.Run("directory", func(t *testing.T) {
		_, err := artifact.Load(dir)
		assert.ErrorIs(t, err, errors.ErrArtifactCorrupt)
	})

	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("PK\x03\x04 not an artifact")},
		{"truncated body", []byte(artifact.Magic + "\x28\xb5\x2f")},
		{"garbage body", append([]byte(artifact.Magic), bytes.Repeat([]byte{0xff}, 64)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".tpop")
			require.NoError(t, os.WriteFile(path, tt.content, 0o600))
			_, err := artifact.Load(path)
			assert.ErrorIs(t, err, errors.ErrArtifactCorrupt)
		})
	}
}

func TestWriteRejectsUnfitted(t *testing.T) {
	p := fitPipeline(t)
	est, err := model.New(model.RidgeParams{Alpha: 1})
	require.NoError(t, err)

	bundle := &artifact.Bundle{Kind: model.KindRidge, Transform: p.transform, Estimator: est}
	err = artifact.Write(&bytes.Buffer{}, bundle)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	err = artifact.Save(filepath.Join(t.TempDir(), "x.tpop"), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
