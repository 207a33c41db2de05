package trackpop_test

import (
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrack() trackpop.TrackFeatures {
	return trackpop.TrackFeatures{
		Danceability: 0.8, Energy: 0.7, Loudness: -5, Speechiness: 0.05,
		Acousticness: 0.1, Instrumentalness: 0, Liveness: 0.1, Valence: 0.6,
		Tempo: 120, DurationMS: 210000, Key: 5, Mode: 1, TimeSignature: 4,
	}
}

func TestDecodeRecords(t *testing.T) {
	t.Run("single object takes defaults", func(t *testing.T) {
		records, err := trackpop.DecodeRecords(strings.NewReader(`{
			"danceability": 0.5, "energy": 0.4, "loudness": -8, "speechiness": 0.1,
			"acousticness": 0.2, "instrumentalness": 0.0, "liveness": 0.3, "valence": 0.9,
			"tempo": 98.5, "duration_ms": 180000
		}`))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, int64(0), records[0].Key)
		assert.Equal(t, int64(1), records[0].Mode)
		assert.Equal(t, int64(4), records[0].TimeSignature)
		assert.InDelta(t, 98.5, records[0].Tempo, 0)
	})

	t.Run("array keeps explicit values", func(t *testing.T) {
		records, err := trackpop.DecodeRecords(strings.NewReader(`[
			{"danceability": 0.1, "mode": 0, "time_signature": 3, "key": 11},
			{"danceability": 0.2}
		]`))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(0), records[0].Mode)
		assert.Equal(t, int64(3), records[0].TimeSignature)
		assert.Equal(t, int64(11), records[0].Key)
		assert.Equal(t, int64(1), records[1].Mode)
	})

	for _, input := range []string{"", "   ", "{", `[{"energy": "loud"}]`} {
		_, err := trackpop.DecodeRecords(strings.NewReader(input))
		assert.ErrorIs(t, err, errors.ErrInvalidInput, "input %q", input)
	}
}

func TestTrackFeaturesValidate(t *testing.T) {
	require.NoError(t, validTrack().Validate())

	tests := []struct {
		name   string
		mutate func(*trackpop.TrackFeatures)
	}{
		{"danceability above one", func(f *trackpop.TrackFeatures) { f.Danceability = 1.2 }},
		{"negative valence", func(f *trackpop.TrackFeatures) { f.Valence = -0.1 }},
		{"loudness too low", func(f *trackpop.TrackFeatures) { f.Loudness = -61 }},
		{"positive loudness", func(f *trackpop.TrackFeatures) { f.Loudness = 1 }},
		{"tempo too high", func(f *trackpop.TrackFeatures) { f.Tempo = 301 }},
		{"zero duration", func(f *trackpop.TrackFeatures) { f.DurationMS = 0 }},
		{"key out of range", func(f *trackpop.TrackFeatures) { f.Key = 12 }},
		{"mode out of range", func(f *trackpop.TrackFeatures) { f.Mode = 2 }},
		{"time signature too small", func(f *trackpop.TrackFeatures) { f.TimeSignature = 2 }},
		{"time signature too large", func(f *trackpop.TrackFeatures) { f.TimeSignature = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validTrack()
			tt.mutate(&f)
			err := f.Validate()
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
}

func TestCategorize(t *testing.T) {
	defaults := config.CategoryConfig{LowBelow: 40, HighFrom: 70}
	tests := []struct {
		score      float64
		want       trackpop.Category
		confidence string
	}{
		{0, trackpop.CategoryLow, "High"},
		{39.99, trackpop.CategoryLow, "High"},
		{40, trackpop.CategoryMedium, "Medium"},
		{69.9, trackpop.CategoryMedium, "Medium"},
		{70, trackpop.CategoryHigh, "High"},
		{100, trackpop.CategoryHigh, "High"},
	}
	for _, tt := range tests {
		got := trackpop.Categorize(tt.score, defaults)
		assert.Equal(t, tt.want, got, "score %g", tt.score)
		assert.Equal(t, tt.confidence, got.Confidence())
	}

	custom := config.CategoryConfig{LowBelow: 34, HighFrom: 67}
	assert.Equal(t, trackpop.CategoryMedium, trackpop.Categorize(35, custom))
	assert.Equal(t, trackpop.CategoryHigh, trackpop.Categorize(67, custom))

	cfg := trackpop.NewConfig()
	cfg.Categories = custom
	p := newPredictor(t, cfg)
	assert.Equal(t, trackpop.CategoryHigh, p.Categorize(68))
}

func TestRecordsFrame(t *testing.T) {
	df := trackpop.RecordsFrame([]trackpop.TrackFeatures{validTrack(), validTrack()}, memory.NewGoAllocator())
	defer df.Release()

	assert.Equal(t, 2, df.Len())
	for _, name := range config.NewConfig().Features.Columns() {
		assert.True(t, df.HasColumn(name), name)
	}
	key, ok := df.Column("key")
	require.True(t, ok)
	assert.Equal(t, "5", key.GetAsString(0))
}

func TestPredictRecords(t *testing.T) {
	p := newPredictor(t, testConfig(t))
	features, target := loadTracks(t, p)
	_, err := p.Train(features, target, "ridge")
	require.NoError(t, err)

	quiet := validTrack()
	quiet.Danceability, quiet.Energy, quiet.Loudness, quiet.Mode = 0, 0, -60, 0

	preds, err := p.PredictRecords([]trackpop.TrackFeatures{validTrack(), quiet}, "ridge")
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Greater(t, preds[0].Popularity, preds[1].Popularity)
	for _, pred := range preds {
		assert.Equal(t, p.Categorize(pred.Popularity), pred.Category)
		assert.Equal(t, pred.Category.Confidence(), pred.Confidence)
	}
	assert.Equal(t, trackpop.CategoryHigh, preds[0].Category)
	assert.Equal(t, trackpop.CategoryLow, preds[1].Category)

	t.Run("invalid record", func(t *testing.T) {
		bad := validTrack()
		bad.Tempo = -1
		_, err := p.PredictRecords([]trackpop.TrackFeatures{validTrack(), bad}, "ridge")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
		assert.Contains(t, err.Error(), "record 1")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := p.PredictRecords(nil, "ridge")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("untrained kind", func(t *testing.T) {
		_, err := p.PredictRecords([]trackpop.TrackFeatures{validTrack()}, "lasso")
		assert.ErrorIs(t, err, errors.ErrModelNotTrained)
	})
}
