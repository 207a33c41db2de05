// Package testutil provides shared fixtures for trackpop tests: memory setup,
// deterministic track tables with a learnable popularity signal, and small
// regression problems for estimator tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultRowCount = 200
	defaultSeed     = 7
)

// TestMemoryContext provides memory allocator with automatic cleanup.
type TestMemoryContext struct {
	Allocator memory.Allocator
	cleanup   func()
}

// Release performs cleanup of the memory context.
func (tmc *TestMemoryContext) Release() {
	if tmc.cleanup != nil {
		tmc.cleanup()
	}
}

// SetupMemoryTest creates a checked allocator and asserts on Release that
// every Arrow buffer was freed.
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	allocator := memory.NewCheckedAllocator(memory.NewGoAllocator())

	return &TestMemoryContext{
		Allocator: allocator,
		cleanup: func() {
			allocator.AssertSize(tb, 0)
		},
	}
}

// TrackOption configures NewTrackFrame.
type TrackOption func(*trackConfig)

type trackConfig struct {
	rows           int
	seed           int64
	target         string
	constantTarget *float64
	nullRows       []int
	duplicateRows  []int
}

// WithRows sets the number of generated rows before duplicates are appended.
func WithRows(n int) TrackOption {
	return func(c *trackConfig) { c.rows = n }
}

// WithSeed sets the generator seed.
func WithSeed(seed int64) TrackOption {
	return func(c *trackConfig) { c.seed = seed }
}

// WithTarget renames the popularity column.
func WithTarget(name string) TrackOption {
	return func(c *trackConfig) { c.target = name }
}

// WithConstantTarget makes every popularity value equal to v.
func WithConstantTarget(v float64) TrackOption {
	return func(c *trackConfig) { c.constantTarget = &v }
}

// WithNullEnergy nulls the energy cell of the given rows.
func WithNullEnergy(rows ...int) TrackOption {
	return func(c *trackConfig) { c.nullRows = append(c.nullRows, rows...) }
}

// WithDuplicates appends exact copies of the given rows at the end.
func WithDuplicates(rows ...int) TrackOption {
	return func(c *trackConfig) { c.duplicateRows = append(c.duplicateRows, rows...) }
}

// TrackColumns lists the columns NewTrackFrame produces, in order, apart
// from the target.
var TrackColumns = []string{
	"track_id", "track_name", "track_artist",
	"danceability", "energy", "loudness", "speechiness", "acousticness",
	"instrumentalness", "liveness", "valence", "tempo", "duration_ms",
	"key", "mode", "time_signature",
}

// NewTrackFrame builds a deterministic track table. Popularity depends
// linearly on danceability, energy, loudness and mode plus small noise, so
// models have something to learn.
func NewTrackFrame(tb testing.TB, mem memory.Allocator, opts ...TrackOption) *dataframe.DataFrame {
	tb.Helper()
	cfg := &trackConfig{rows: defaultRowCount, seed: defaultSeed, target: "popularity"}
	for _, opt := range opts {
		opt(cfg)
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	order := make([]int, 0, cfg.rows+len(cfg.duplicateRows))
	for i := 0; i < cfg.rows; i++ {
		order = append(order, i)
	}
	order = append(order, cfg.duplicateRows...)

	n := cfg.rows
	ids := make([]string, n)
	names := make([]string, n)
	artists := make([]string, n)
	ratios := map[string][]float64{}
	for _, name := range []string{"danceability", "energy", "speechiness", "acousticness", "instrumentalness", "liveness", "valence"} {
		ratios[name] = make([]float64, n)
	}
	loudness := make([]float64, n)
	tempo := make([]float64, n)
	duration := make([]int64, n)
	key := make([]int64, n)
	mode := make([]int64, n)
	timeSig := make([]int64, n)
	target := make([]float64, n)

	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("track_%04d", i)
		names[i] = fmt.Sprintf("Song %d", i)
		artists[i] = fmt.Sprintf("Artist %d", i%17)
		for _, name := range []string{"danceability", "energy", "speechiness", "acousticness", "instrumentalness", "liveness", "valence"} {
			ratios[name][i] = rng.Float64()
		}
		loudness[i] = -60 + 60*rng.Float64()
		tempo[i] = 50 + 150*rng.Float64()
		duration[i] = 120000 + rng.Int63n(180000)
		key[i] = rng.Int63n(12)
		mode[i] = rng.Int63n(2)
		timeSig[i] = 3 + rng.Int63n(3)

		if cfg.constantTarget != nil {
			target[i] = *cfg.constantTarget
			continue
		}
		score := 10 + 40*ratios["danceability"][i] + 25*ratios["energy"][i] +
			0.3*(loudness[i]+60) + 8*float64(mode[i]) + rng.NormFloat64()
		target[i] = math.Max(0, math.Min(100, score))
	}

	valid := make([]bool, len(order))
	for i := range valid {
		valid[i] = true
	}
	for _, r := range cfg.nullRows {
		valid[r] = false
	}

	cols := []dataframe.ISeries{
		series.New("track_id", pick(ids, order), mem),
		series.New("track_name", pick(names, order), mem),
		series.New("track_artist", pick(artists, order), mem),
		series.New("danceability", pick(ratios["danceability"], order), mem),
	}
	energy, err := series.NewNullable("energy", pick(ratios["energy"], order), valid, mem)
	require.NoError(tb, err)
	cols = append(cols,
		energy,
		series.New("loudness", pick(loudness, order), mem),
		series.New("speechiness", pick(ratios["speechiness"], order), mem),
		series.New("acousticness", pick(ratios["acousticness"], order), mem),
		series.New("instrumentalness", pick(ratios["instrumentalness"], order), mem),
		series.New("liveness", pick(ratios["liveness"], order), mem),
		series.New("valence", pick(ratios["valence"], order), mem),
		series.New("tempo", pick(tempo, order), mem),
		series.New("duration_ms", pick(duration, order), mem),
		series.New("key", pick(key, order), mem),
		series.New("mode", pick(mode, order), mem),
		series.New("time_signature", pick(timeSig, order), mem),
		series.New(cfg.target, pick(target, order), mem),
	)
	return dataframe.New(cols...)
}

func pick[T any](values []T, order []int) []T {
	out := make([]T, len(order))
	for i, idx := range order {
		out[i] = values[idx]
	}
	return out
}

// LinearProblem returns n rows of three standard normal features and
// y = 3*x0 - 2*x1 + 0.5*x2 + 4 + noise*N(0,1).
func LinearProblem(n int, noise float64, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0, x1, x2 := rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()
		X.SetRow(i, []float64{x0, x1, x2})
		y[i] = 3*x0 - 2*x1 + 0.5*x2 + 4 + noise*rng.NormFloat64()
	}
	return X, y
}

// StepProblem returns n rows of two uniform features where y depends on x0
// through a step function, the shape trees fit exactly.
func StepProblem(n int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0, x1 := rng.Float64(), rng.Float64()
		X.SetRow(i, []float64{x0, x1})
		switch {
		case x0 < 0.3:
			y[i] = 10
		case x0 < 0.7:
			y[i] = 50
		default:
			y[i] = 90
		}
	}
	return X, y
}

// AssertDataFrameEqual compares column names and every row's contents.
func AssertDataFrameEqual(t *testing.T, expected, actual *dataframe.DataFrame) {
	t.Helper()

	require.NotNil(t, expected, "expected DataFrame should not be nil")
	require.NotNil(t, actual, "actual DataFrame should not be nil")

	assert.Equal(t, expected.Columns(), actual.Columns(), "DataFrame columns should match")
	require.Equal(t, expected.Len(), actual.Len(), "DataFrame lengths should match")
	for i := 0; i < expected.Len(); i++ {
		assert.Equal(t, expected.RowKey(i), actual.RowKey(i), "row %d should match", i)
	}
}
