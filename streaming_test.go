package trackpop

import (
	"errors"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataset"
	"github.com/paveg/trackpop/internal/series"
	"github.com/paveg/trackpop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedPredictor(t *testing.T, kind string) (*Predictor, *DataFrame) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Split.CVFolds = 0
	cfg.Parallel.Workers = 3

	p, err := New(cfg)
	require.NoError(t, err)

	table := testutil.NewTrackFrame(t, memory.NewGoAllocator(), testutil.WithRows(120))
	t.Cleanup(table.Release)
	features, target, err := dataset.SplitFeaturesTarget(table, cfg.Features)
	require.NoError(t, err)

	df := &DataFrame{df: features}
	_, err = p.Train(df, target, kind)
	require.NoError(t, err)
	return p, df
}

func TestSliceChunkReader(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	df := NewDataFrame(series.New("values", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, mem))
	defer func() {
		df.Release()
		mem.AssertSize(t, 0)
	}()

	reader := NewSliceChunkReader(df, 4)
	var sizes []int
	for reader.HasNext() {
		chunk, err := reader.ReadChunk()
		require.NoError(t, err)
		sizes = append(sizes, chunk.Len())
		chunk.Release()
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)

	_, err := reader.ReadChunk()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, reader.Close())
	assert.False(t, reader.HasNext())
	_, err = reader.ReadChunk()
	assert.Error(t, err)

	assert.Equal(t, DefaultChunkSize, NewSliceChunkReader(df, 0).chunkSize)
}

func TestPredictStream(t *testing.T) {
	p, features := trainedPredictor(t, "ridge")
	want, err := p.Predict(features, "ridge")
	require.NoError(t, err)

	var got []float64
	var rows []int
	err = p.PredictStream(NewSliceChunkReader(features, 50), "ridge", func(chunk *DataFrame, preds []float64) error {
		rows = append(rows, chunk.Len())
		got = append(got, preds...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 50, 20}, rows)
	assert.InDeltaSlice(t, want, got, 1e-9)

	t.Run("emit error stops the stream", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := p.PredictStream(NewSliceChunkReader(features, 50), "ridge", func(*DataFrame, []float64) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})
}

func TestPredictChunked(t *testing.T) {
	p, features := trainedPredictor(t, "random_forest")
	want, err := p.Predict(features, "random_forest")
	require.NoError(t, err)

	for _, size := range []int{7, 64, 1000, 0} {
		got, err := p.PredictChunked(features, "random_forest", size)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-9, "chunk size %d", size)
	}

	_, err = p.PredictChunked(features, "lasso", 10)
	assert.Error(t, err)
}
