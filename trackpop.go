// Package trackpop predicts the popularity of music tracks from their audio
// features. This package is the sole public API of the module.
//
// A Predictor trains one pipeline per model kind. A pipeline is a fitted
// preprocessing transform (standard scaling plus one-hot encoding) bundled
// with a regression estimator, and can be saved to and loaded from an
// artifact file.
//
//	cfg := trackpop.NewConfig()
//	p, err := trackpop.New(cfg)
//	if err != nil {
//		return err
//	}
//	ds, err := p.LoadDataset()
//	if err != nil {
//		return err
//	}
//	defer ds.Release()
//	result, err := p.Train(ds.Features, ds.Target, "xgboost")
package trackpop

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataframe"
	tpio "github.com/paveg/trackpop/internal/io"
	"github.com/paveg/trackpop/internal/model"
	"github.com/paveg/trackpop/internal/series"
	"github.com/paveg/trackpop/internal/stats"
)

// ISeries is a named, typed column backed by Arrow memory.
type ISeries = series.Column

// Config is the pipeline configuration.
type Config = config.Config

// Kind names an estimator family.
type Kind = model.Kind

// Supported model kinds.
const (
	Ridge            = model.KindRidge
	Lasso            = model.KindLasso
	ElasticNet       = model.KindElasticNet
	RandomForest     = model.KindRandomForest
	GradientBoosting = model.KindGradientBoosting
	XGBoost          = model.KindXGBoost
)

// Metrics maps metric names such as "test_r2" to values.
type Metrics = model.Metrics

// Importance is one feature's share of a model's importance.
type Importance = model.Importance

// Comparison holds metrics of several models trained on the same split.
type Comparison = model.Comparison

// Summary holds descriptive statistics of one numeric column.
type Summary = stats.Summary

// TargetCorrelation is one feature's Pearson correlation with the target.
type TargetCorrelation = stats.TargetCorrelation

// NewConfig returns the default configuration.
func NewConfig() Config {
	return config.NewConfig()
}

// LoadConfig reads a YAML or JSON configuration file, applies TRACKPOP_*
// environment overrides and fills unset values with defaults.
func LoadConfig(path string) (Config, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg = config.ApplyEnv(cfg).WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SupportedModels returns every model kind name.
func SupportedModels() []string {
	return model.KindNames()
}

// DataFrame is a table of tracks. It wraps the internal table to hide
// implementation details.
type DataFrame struct {
	df *dataframe.DataFrame
}

// NewDataFrame creates a DataFrame from columns. The DataFrame takes
// ownership of them.
func NewDataFrame(columns ...ISeries) *DataFrame {
	return &DataFrame{df: dataframe.New(columns...)}
}

// NewSeries creates a typed column from values.
func NewSeries[T any](name string, values []T, mem memory.Allocator) ISeries {
	return series.New(name, values, mem)
}

// NewNullableSeries creates a typed column where valid[i] == false marks a
// null.
func NewNullableSeries[T any](name string, values []T, valid []bool, mem memory.Allocator) (ISeries, error) {
	return series.NewNullable(name, values, valid, mem)
}

// Columns returns the column names in order.
func (d *DataFrame) Columns() []string {
	return d.df.Columns()
}

// Len returns the number of rows.
func (d *DataFrame) Len() int {
	return d.df.Len()
}

// Width returns the number of columns.
func (d *DataFrame) Width() int {
	return d.df.Width()
}

// Column returns the column with the given name.
func (d *DataFrame) Column(name string) (ISeries, bool) {
	return d.df.Column(name)
}

// HasColumn returns true if the DataFrame has the given column.
func (d *DataFrame) HasColumn(name string) bool {
	return d.df.HasColumn(name)
}

// Select returns a DataFrame with only the named columns. The result shares
// column memory with d; release only one of them.
func (d *DataFrame) Select(names ...string) *DataFrame {
	return &DataFrame{df: d.df.Select(names...)}
}

// Slice returns a copy of rows [start, end).
func (d *DataFrame) Slice(start, end int) (*DataFrame, error) {
	out, err := d.df.Slice(start, end)
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: out}, nil
}

// String returns a string representation of the DataFrame.
func (d *DataFrame) String() string {
	return d.df.String()
}

// Release frees the memory used by the DataFrame.
func (d *DataFrame) Release() {
	if d != nil && d.df != nil {
		d.df.Release()
	}
}

// Format selects a table encoding.
type Format = tpio.Format

// Supported table encodings.
const (
	FormatCSV     = tpio.FormatCSV
	FormatParquet = tpio.FormatParquet
	FormatJSON    = tpio.FormatJSON
)

// FormatFromPath picks the encoding by file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	return tpio.FormatFromPath(path)
}

// Read decodes a table from r.
func Read(r io.Reader, format Format, mem memory.Allocator) (*DataFrame, error) {
	df, err := tpio.NewReader(format, r, mem).Read()
	if err != nil {
		return nil, err
	}
	return &DataFrame{df: df}, nil
}

// Write encodes d to w.
func Write(w io.Writer, format Format, d *DataFrame) error {
	return tpio.NewWriter(format, w).Write(d.df)
}

// ReadFile reads a CSV, JSON or Parquet table, chosen by extension.
func ReadFile(path string, mem memory.Allocator) (*DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	df, err := Read(f, FormatFromPath(path), mem)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return df, nil
}

// WriteFile writes d as CSV, JSON or Parquet, chosen by extension.
func WriteFile(path string, d *DataFrame) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Write(f, FormatFromPath(path), d)
}

// Describe returns count, mean, sample std, min, quartiles and max of the
// named numeric columns, or of every numeric column when none are named.
func Describe(d *DataFrame, columns ...string) ([]Summary, error) {
	return stats.Describe(d.df, columns)
}

// TargetCorrelations correlates each feature with target, strongest first.
func TargetCorrelations(d *DataFrame, features []string, target string) ([]TargetCorrelation, error) {
	return stats.TargetCorrelations(d.df, features, target)
}
