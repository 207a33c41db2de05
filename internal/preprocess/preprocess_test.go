package preprocess_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/preprocess"
	"github.com/paveg/trackpop/internal/series"
	"github.com/paveg/trackpop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var schema = config.FeatureSchema{
	Numerical:   []string{"energy", "tempo"},
	Categorical: []string{"key", "mode"},
	Target:      "popularity",
}

func smallFrame(mem memory.Allocator, keys []int64) *dataframe.DataFrame {
	return dataframe.New(
		series.New("energy", []float64{0.2, 0.4, 0.6, 0.8}, mem),
		series.New("tempo", []float64{100, 100, 100, 100}, mem),
		series.New("key", keys, mem),
		series.New("mode", []string{"minor", "major", "major", "minor"}, mem),
	)
}

func TestFit(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := smallFrame(mem, []int64{10, 2, 2, 1})
	defer df.Release()

	ft, err := preprocess.New(schema).Fit(df)
	require.NoError(t, err)

	require.Len(t, ft.Numeric, 2)
	assert.InDelta(t, 0.5, ft.Numeric[0].Mean, 1e-12)
	assert.InDelta(t, 0.2236067977, ft.Numeric[0].Scale, 1e-9)
	assert.InDelta(t, 0.0, ft.Numeric[1].Scale, 0)

	require.Len(t, ft.Categorical, 2)
	assert.Equal(t, "1", ft.Categorical[0].Reference, "numeric categories sort numerically")
	assert.Equal(t, []string{"2", "10"}, ft.Categorical[0].Categories)
	assert.Equal(t, "major", ft.Categorical[1].Reference)
	assert.Equal(t, []string{"minor"}, ft.Categorical[1].Categories)

	assert.Equal(t, []string{"energy", "tempo", "key_2", "key_10", "mode_minor"}, ft.FeatureNames())
	assert.Equal(t, 5, ft.NumFeatures())
	assert.Equal(t, "FittedTransform[numeric=2, categorical=2, outputs=5]", ft.String())
}

func TestTransform(t *testing.T) {
	mem := memory.NewGoAllocator()
	train := smallFrame(mem, []int64{10, 2, 2, 1})
	defer train.Release()

	ft, X, err := preprocess.New(schema).FitTransform(train)
	require.NoError(t, err)

	r, c := X.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 5, c)

	assert.Equal(t, []float64{0, 0, 1, 1}, mat.Row(nil, 0, X)[1:])
	assert.Equal(t, []float64{0, 1, 0, 0}, mat.Row(nil, 1, X)[1:])
	assert.Equal(t, []float64{0, 0, 0, 1}, mat.Row(nil, 3, X)[1:], "reference category encodes as zeros")

	t.Run("unseen category yields zero block", func(t *testing.T) {
		unseen := smallFrame(mem, []int64{7, 7, 7, 7})
		defer unseen.Release()

		Xu, err := ft.Transform(unseen)
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			assert.InDelta(t, 0.0, Xu.At(i, 2), 0)
			assert.InDelta(t, 0.0, Xu.At(i, 3), 0)
		}
	})

	t.Run("float text matches int categories", func(t *testing.T) {
		asFloat := dataframe.New(
			series.New("energy", []float64{0.5}, mem),
			series.New("tempo", []float64{90}, mem),
			series.New("key", []float64{10}, mem),
			series.New("mode", []string{"major"}, mem),
		)
		defer asFloat.Release()

		Xf, err := ft.Transform(asFloat)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, Xf.At(0, 3), 0)
		assert.InDelta(t, 0.0, Xf.At(0, 1), 0, "constant column scales to zero")
	})

	t.Run("missing column", func(t *testing.T) {
		partial := train.Drop("mode")
		_, err := ft.Transform(partial)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("null value", func(t *testing.T) {
		energy, err := series.NewNullable("energy", []float64{0.1}, []bool{false}, mem)
		require.NoError(t, err)
		withNull := dataframe.New(
			energy,
			series.New("tempo", []float64{90}, mem),
			series.New("key", []int64{2}, mem),
			series.New("mode", []string{"major"}, mem),
		)
		defer withNull.Release()

		_, err = ft.Transform(withNull)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}

func TestScaledColumnsAreStandardized(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.NewTrackFrame(t, mem, testutil.WithRows(300))
	defer df.Release()

	full := config.NewConfig().Features
	ft, X, err := preprocess.New(full).FitTransform(df)
	require.NoError(t, err)

	for j := range ft.Numeric {
		col := mat.Col(nil, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		assert.InDelta(t, 0.0, mean, 1e-9, ft.Numeric[j].Name)
		assert.InDelta(t, 1.0, std, 1e-9, ft.Numeric[j].Name)
	}

	// 11 keys, 1 mode and 2 time signatures remain after dropping references.
	assert.Equal(t, 10+11+1+2, ft.NumFeatures())
}

func TestFitErrors(t *testing.T) {
	mem := memory.NewGoAllocator()

	t.Run("missing column", func(t *testing.T) {
		df := dataframe.New(series.New("energy", []float64{1}, mem))
		defer df.Release()
		_, err := preprocess.New(schema).Fit(df)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("empty table", func(t *testing.T) {
		df := smallFrame(mem, []int64{1, 2, 3, 4})
		defer df.Release()
		empty, err := df.Take(nil)
		require.NoError(t, err)
		defer empty.Release()

		_, err = preprocess.New(schema).Fit(empty)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("text in numerical column", func(t *testing.T) {
		df := dataframe.New(
			series.New("energy", []string{"high"}, mem),
			series.New("tempo", []float64{1}, mem),
			series.New("key", []int64{1}, mem),
			series.New("mode", []string{"major"}, mem),
		)
		defer df.Release()
		_, err := preprocess.New(schema).Fit(df)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}
