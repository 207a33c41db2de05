package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataset"
	"github.com/paveg/trackpop/internal/errors"
	tio "github.com/paveg/trackpop/internal/io"
	"github.com/paveg/trackpop/internal/monitoring"
	"github.com/paveg/trackpop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoad(t *testing.T) {
	mem := memory.NewGoAllocator()

	t.Run("missing file synthesizes tracks", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		path := filepath.Join(t.TempDir(), "absent.csv")

		df, src, err := dataset.Load(path, dataset.Options{SampleRows: 50, Seed: 42, Mem: mem, Logger: zap.New(core)})
		require.NoError(t, err)
		defer df.Release()

		assert.True(t, src.Synthetic)
		assert.Equal(t, 50, src.Rows)
		assert.Equal(t, 50, df.Len())
		for _, name := range append(config.DefaultNumerical(), "key", "mode", "time_signature", "popularity", "track_id") {
			assert.True(t, df.HasColumn(name), name)
		}
		assert.Equal(t, 1, logs.FilterMessage("data file not found, generating synthetic tracks").Len())
	})

	t.Run("reads CSV", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tracks.csv")
		require.NoError(t, os.WriteFile(path, []byte("energy,popularity\n0.5,10\n,20\n"), 0o600))

		df, src, err := dataset.Load(path, dataset.Options{Mem: mem})
		require.NoError(t, err)
		defer df.Release()

		assert.False(t, src.Synthetic)
		assert.Equal(t, tio.FormatCSV, src.Format)
		assert.Equal(t, 2, df.Len())
		energy, _ := df.Column("energy")
		assert.True(t, energy.IsNull(1))
	})

	t.Run("reads Parquet", func(t *testing.T) {
		source := testutil.NewTrackFrame(t, mem, testutil.WithRows(12))
		defer source.Release()

		path := filepath.Join(t.TempDir(), "tracks.parquet")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, tio.NewParquetWriter(f, tio.DefaultParquetOptions()).Write(source))
		require.NoError(t, f.Close())

		df, src, err := dataset.Load(path, dataset.Options{Mem: mem})
		require.NoError(t, err)
		defer df.Release()

		assert.Equal(t, tio.FormatParquet, src.Format)
		testutil.AssertDataFrameEqual(t, source, df)
	})

	t.Run("other I/O errors propagate", func(t *testing.T) {
		_, _, err := dataset.Load(t.TempDir(), dataset.Options{Mem: mem})
		require.Error(t, err)
	})
}

func TestSynthesize(t *testing.T) {
	mem := memory.NewGoAllocator()

	a, err := dataset.Synthesize(300, 42, "popularity", mem)
	require.NoError(t, err)
	defer a.Release()
	b, err := dataset.Synthesize(300, 42, "popularity", mem)
	require.NoError(t, err)
	defer b.Release()
	testutil.AssertDataFrameEqual(t, a, b)

	ranges := map[string][2]float64{
		"danceability":   {0, 1},
		"valence":        {0, 1},
		"loudness":       {-60, 0},
		"tempo":          {50, 200},
		"duration_ms":    {120000, 300000},
		"key":            {0, 11},
		"mode":           {0, 1},
		"time_signature": {3, 5},
		"popularity":     {0, 100},
	}
	for name, r := range ranges {
		col, ok := a.Column(name)
		require.True(t, ok, name)
		for i := 0; i < col.Len(); i++ {
			v, ok := col.Float64At(i)
			require.True(t, ok)
			assert.GreaterOrEqual(t, v, r[0], name)
			assert.LessOrEqual(t, v, r[1], name)
		}
	}

	_, err = dataset.Synthesize(0, 1, "popularity", mem)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestClean(t *testing.T) {
	mem := memory.NewGoAllocator()
	columns := append(config.DefaultNumerical(), "key", "mode", "time_signature", "popularity")

	t.Run("drops nulls then duplicates", func(t *testing.T) {
		df := testutil.NewTrackFrame(t, mem, testutil.WithRows(30), testutil.WithNullEnergy(2, 5), testutil.WithDuplicates(0, 0, 7))
		defer df.Release()

		cleaned, report, err := dataset.Clean(df, columns)
		require.NoError(t, err)
		defer cleaned.Release()

		assert.Equal(t, dataset.CleanReport{NullRowsRemoved: 2, DuplicatesRemoved: 3, Remaining: 28}, report)
		assert.Equal(t, 28, cleaned.Len())

		ids, _ := cleaned.Column("track_id")
		assert.Equal(t, "track_0000", ids.GetAsString(0))
		assert.Equal(t, "track_0001", ids.GetAsString(1))
		assert.Equal(t, "track_0003", ids.GetAsString(2), "row order is preserved")
	})

	t.Run("idempotent on clean input", func(t *testing.T) {
		df := testutil.NewTrackFrame(t, mem, testutil.WithRows(40), testutil.WithDuplicates(1))
		defer df.Release()

		once, _, err := dataset.Clean(df, columns)
		require.NoError(t, err)
		defer once.Release()
		twice, report, err := dataset.Clean(once, columns)
		require.NoError(t, err)
		defer twice.Release()

		testutil.AssertDataFrameEqual(t, once, twice)
		assert.Zero(t, report.NullRowsRemoved)
		assert.Zero(t, report.DuplicatesRemoved)
	})

	t.Run("nulls outside declared columns are kept", func(t *testing.T) {
		df := testutil.NewTrackFrame(t, mem, testutil.WithRows(10), testutil.WithNullEnergy(4))
		defer df.Release()

		cleaned, report, err := dataset.Clean(df, []string{"tempo", "popularity"})
		require.NoError(t, err)
		defer cleaned.Release()
		assert.Equal(t, 10, report.Remaining)
	})

	t.Run("missing declared column", func(t *testing.T) {
		df := testutil.NewTrackFrame(t, mem, testutil.WithRows(5))
		defer df.Release()

		_, _, err := dataset.Clean(df, []string{"genre"})
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}

func TestSplitFeaturesTarget(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.NewTrackFrame(t, mem, testutil.WithRows(10))
	defer df.Release()

	schema := config.NewConfig().Features

	features, target, err := dataset.SplitFeaturesTarget(df, schema)
	require.NoError(t, err)
	assert.Equal(t, schema.Columns(), features.Columns())
	assert.Len(t, target, 10)

	t.Run("missing target", func(t *testing.T) {
		bad := schema
		bad.Target = "track_popularity"
		_, _, err := dataset.SplitFeaturesTarget(df, bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrSchema)
		assert.Contains(t, err.Error(), "track_popularity")
	})

	t.Run("missing feature", func(t *testing.T) {
		bad := schema
		bad.Numerical = append([]string{"loudness_db"}, schema.Numerical...)
		_, _, err := dataset.SplitFeaturesTarget(df, bad)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("non-numeric target", func(t *testing.T) {
		bad := schema
		bad.Target = "track_name"
		_, _, err := dataset.SplitFeaturesTarget(df, bad)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}

func TestTrainTestSplit(t *testing.T) {
	tests := []struct {
		n     int
		ratio float64
		test  int
	}{
		{1000, 0.2, 200},
		{101, 0.2, 21},
		{10, 0.25, 3},
		{2, 0.5, 1},
	}
	for _, tt := range tests {
		train, test, err := dataset.TrainTestSplit(tt.n, tt.ratio, 42)
		require.NoError(t, err)
		assert.Len(t, test, tt.test)
		assert.Len(t, train, tt.n-tt.test)

		seen := make(map[int]bool)
		for _, i := range append(append([]int{}, train...), test...) {
			assert.False(t, seen[i], "index %d appears twice", i)
			seen[i] = true
		}
		assert.Len(t, seen, tt.n)
	}

	t.Run("deterministic for a seed", func(t *testing.T) {
		a, _, err := dataset.TrainTestSplit(50, 0.2, 7)
		require.NoError(t, err)
		b, _, err := dataset.TrainTestSplit(50, 0.2, 7)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("invalid ratio", func(t *testing.T) {
		for _, ratio := range []float64{0, 1, -0.1, 1.5} {
			_, _, err := dataset.TrainTestSplit(10, ratio, 1)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		}
	})

	t.Run("empty partition", func(t *testing.T) {
		_, _, err := dataset.TrainTestSplit(1, 0.5, 1)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestKFold(t *testing.T) {
	folds, err := dataset.KFold(23, 5, 42)
	require.NoError(t, err)
	require.Len(t, folds, 5)

	sizes := make([]int, len(folds))
	seen := make(map[int]bool)
	for f, fold := range folds {
		sizes[f] = len(fold)
		for _, i := range fold {
			assert.False(t, seen[i])
			seen[i] = true
		}
	}
	assert.Equal(t, []int{5, 5, 5, 4, 4}, sizes)
	assert.Len(t, seen, 23)

	assert.Equal(t, []int{0, 2, 4}, dataset.Complement(5, []int{3, 1}))

	_, err = dataset.KFold(3, 5, 1)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	_, err = dataset.KFold(10, 1, 1)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestDescribe(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.NewTrackFrame(t, mem, testutil.WithRows(6), testutil.WithNullEnergy(1))
	defer df.Release()

	info := dataset.Describe(df)
	assert.Equal(t, 6, info.Rows)
	assert.Equal(t, 1, info.MissingValues["energy"])
	assert.Equal(t, "float64", info.DataTypes["tempo"])
	assert.Equal(t, "int64", info.DataTypes["key"])
	assert.Equal(t, "utf8", info.DataTypes["track_id"])
}

func TestLoaderPrepare(t *testing.T) {
	mc := monitoring.NewMetricsCollector(true)
	cfg := config.NewConfig()
	cfg.Data.Path = filepath.Join(t.TempDir(), "missing.csv")
	cfg.Data.SampleRows = 120

	loader := dataset.NewLoader(cfg, dataset.WithLogger(zap.NewNop()), dataset.WithMetrics(mc))
	prepared, err := loader.Prepare()
	require.NoError(t, err)
	defer prepared.Release()

	assert.True(t, prepared.Source.Synthetic)
	assert.Equal(t, 120, prepared.Report.Remaining)
	assert.Equal(t, cfg.Features.Columns(), prepared.Features.Columns())
	assert.Len(t, prepared.Target, 120)
	assert.Equal(t, 1, mc.GetSummary().OperationCounts["load"])
	assert.Equal(t, 1, mc.GetSummary().OperationCounts["clean"])

	t.Run("schema mismatch", func(t *testing.T) {
		bad := cfg
		bad.Data.Path = filepath.Join(t.TempDir(), "tracks.csv")
		require.NoError(t, os.WriteFile(bad.Data.Path, []byte("energy,popularity\n0.1,3\n"), 0o600))

		_, err := dataset.NewLoader(bad).Prepare()
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}
