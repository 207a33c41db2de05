package dataset

import (
	"fmt"
	"math/rand"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/series"
)

// ratioFeatures are drawn from U(0, 1).
var ratioFeatures = []string{
	"danceability", "energy", "speechiness", "acousticness",
	"instrumentalness", "liveness", "valence",
}

// Synthesize generates rows tracks with independent uniform features:
// ratios in [0,1), loudness in [-60,0), tempo in [50,200), duration_ms in
// [120000,300000), key in [0,12), mode in {0,1}, time_signature in {3,4,5}
// and an integer target in [0,101). The same seed always yields the same
// table.
func Synthesize(rows int, seed int64, target string, mem memory.Allocator) (*dataframe.DataFrame, error) {
	if rows <= 0 {
		return nil, errors.NewInvalidInputError("Synthesize", fmt.Sprintf("row count must be positive, got %d", rows))
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	rng := rand.New(rand.NewSource(seed))

	ids := make([]string, rows)
	names := make([]string, rows)
	artists := make([]string, rows)
	for i := range ids {
		ids[i] = fmt.Sprintf("synthetic_%06d", i)
		names[i] = fmt.Sprintf("Track %d", i+1)
		artists[i] = fmt.Sprintf("Artist %d", rng.Intn(100)+1)
	}

	cols := []dataframe.ISeries{
		series.New("track_id", ids, mem),
		series.New("track_name", names, mem),
		series.New("track_artist", artists, mem),
	}

	uniform := func(lo, hi float64) []float64 {
		out := make([]float64, rows)
		for i := range out {
			out[i] = lo + (hi-lo)*rng.Float64()
		}
		return out
	}
	integers := func(lo, hi int64) []int64 {
		out := make([]int64, rows)
		for i := range out {
			out[i] = lo + rng.Int63n(hi-lo)
		}
		return out
	}

	for _, name := range ratioFeatures[:2] {
		cols = append(cols, series.New(name, uniform(0, 1), mem))
	}
	cols = append(cols, series.New("loudness", uniform(-60, 0), mem))
	for _, name := range ratioFeatures[2:] {
		cols = append(cols, series.New(name, uniform(0, 1), mem))
	}
	cols = append(cols,
		series.New("tempo", uniform(50, 200), mem),
		series.New("duration_ms", integers(120000, 300000), mem),
		series.New("key", integers(0, 12), mem),
		series.New("mode", integers(0, 2), mem),
		series.New("time_signature", integers(3, 6), mem),
		series.New(target, integers(0, 101), mem),
	)

	return dataframe.New(cols...), nil
}
