package trackpop

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/series"
	"github.com/paveg/trackpop/internal/validation"
)

// TrackFeatures is one track to score. Key, mode and time signature default
// to 0, 1 and 4 when absent from JSON input.
type TrackFeatures struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Loudness         float64 `json:"loudness"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	DurationMS       int64   `json:"duration_ms"`
	Key              int64   `json:"key"`
	Mode             int64   `json:"mode"`
	TimeSignature    int64   `json:"time_signature"`
}

// UnmarshalJSON applies the mode and time signature defaults.
func (t *TrackFeatures) UnmarshalJSON(data []byte) error {
	type plain TrackFeatures
	v := plain{Mode: 1, TimeSignature: 4}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = TrackFeatures(v)
	return nil
}

// Validate checks every field against its documented range.
func (t TrackFeatures) Validate() error {
	const op = "TrackFeatures.Validate"

	ratios := []struct {
		name  string
		value float64
	}{
		{"danceability", t.Danceability},
		{"energy", t.Energy},
		{"speechiness", t.Speechiness},
		{"acousticness", t.Acousticness},
		{"instrumentalness", t.Instrumentalness},
		{"liveness", t.Liveness},
		{"valence", t.Valence},
	}
	for _, r := range ratios {
		if err := validation.ValidateRange(op, r.name, r.value, 0, 1); err != nil {
			return err
		}
	}

	checks := []struct {
		name     string
		value    float64
		min, max float64
	}{
		{"loudness", t.Loudness, -60, 0},
		{"tempo", t.Tempo, 0, 300},
		{"duration_ms", float64(t.DurationMS), 1, math.MaxFloat64},
		{"key", float64(t.Key), 0, 11},
		{"mode", float64(t.Mode), 0, 1},
		{"time_signature", float64(t.TimeSignature), 3, 7},
	}
	for _, c := range checks {
		if err := validation.ValidateRange(op, c.name, c.value, c.min, c.max); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRecords reads a JSON array of tracks or a single track object.
func DecodeRecords(r io.Reader) ([]TrackFeatures, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.NewInvalidInputError("DecodeRecords", "no records")
	}

	if data[0] == '[' {
		var records []TrackFeatures
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, errors.NewInvalidInputError("DecodeRecords", err.Error())
		}
		return records, nil
	}
	var record TrackFeatures
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.NewInvalidInputError("DecodeRecords", err.Error())
	}
	return []TrackFeatures{record}, nil
}

// RecordsFrame converts tracks into a table with one column per feature.
func RecordsFrame(records []TrackFeatures, mem memory.Allocator) *DataFrame {
	n := len(records)
	floats := map[string][]float64{}
	order := []string{
		"danceability", "energy", "loudness", "speechiness", "acousticness",
		"instrumentalness", "liveness", "valence", "tempo",
	}
	for _, name := range order {
		floats[name] = make([]float64, n)
	}
	duration := make([]int64, n)
	key := make([]int64, n)
	mode := make([]int64, n)
	timeSig := make([]int64, n)

	for i, r := range records {
		floats["danceability"][i] = r.Danceability
		floats["energy"][i] = r.Energy
		floats["loudness"][i] = r.Loudness
		floats["speechiness"][i] = r.Speechiness
		floats["acousticness"][i] = r.Acousticness
		floats["instrumentalness"][i] = r.Instrumentalness
		floats["liveness"][i] = r.Liveness
		floats["valence"][i] = r.Valence
		floats["tempo"][i] = r.Tempo
		duration[i] = r.DurationMS
		key[i] = r.Key
		mode[i] = r.Mode
		timeSig[i] = r.TimeSignature
	}

	cols := make([]ISeries, 0, len(order)+4)
	for _, name := range order {
		cols = append(cols, series.New(name, floats[name], mem))
	}
	cols = append(cols,
		series.New("duration_ms", duration, mem),
		series.New("key", key, mem),
		series.New("mode", mode, mem),
		series.New("time_signature", timeSig, mem),
	)
	return NewDataFrame(cols...)
}

// Category buckets a predicted popularity score.
type Category string

// Popularity categories.
const (
	CategoryLow    Category = "Low Popularity"
	CategoryMedium Category = "Medium Popularity"
	CategoryHigh   Category = "High Popularity"
)

// Confidence is coarse: High at either end of the scale, Medium between.
func (c Category) Confidence() string {
	if c == CategoryMedium {
		return "Medium"
	}
	return "High"
}

// Categorize buckets score with the given thresholds: below LowBelow is
// Low, from HighFrom up is High.
func Categorize(score float64, thresholds config.CategoryConfig) Category {
	switch {
	case score < thresholds.LowBelow:
		return CategoryLow
	case score < thresholds.HighFrom:
		return CategoryMedium
	default:
		return CategoryHigh
	}
}

// Categorize buckets score with the configured thresholds.
func (p *Predictor) Categorize(score float64) Category {
	return Categorize(score, p.cfg.Categories)
}

// Prediction is the scored form of one track.
type Prediction struct {
	Popularity float64  `json:"popularity"`
	Category   Category `json:"category"`
	Confidence string   `json:"confidence"`
}

// PredictRecords validates and scores tracks with kind's pipeline.
func (p *Predictor) PredictRecords(records []TrackFeatures, kind string) ([]Prediction, error) {
	if len(records) == 0 {
		return nil, errors.NewInvalidInputError("PredictRecords", "no records")
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	var out []Prediction
	err := WithMemoryManager(p.mem, func(mm *MemoryManager) error {
		df := RecordsFrame(records, p.mem)
		mm.Track(df)

		scores, err := p.Predict(df, kind)
		if err != nil {
			return err
		}
		out = make([]Prediction, len(scores))
		for i, s := range scores {
			c := p.Categorize(s)
			out[i] = Prediction{Popularity: s, Category: c, Confidence: c.Confidence()}
		}
		return nil
	})
	return out, err
}
