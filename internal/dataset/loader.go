// Package dataset loads track tables and prepares them for training:
// reading CSV or Parquet with a synthetic fallback, dropping incomplete and
// duplicate rows, separating features from the target and producing
// seeded train/test and k-fold index partitions.
package dataset

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/errors"
	tio "github.com/paveg/trackpop/internal/io"
	"github.com/paveg/trackpop/internal/logging"
	"github.com/paveg/trackpop/internal/monitoring"
	"github.com/paveg/trackpop/internal/validation"
	"go.uber.org/zap"
)

// Options controls Load.
type Options struct {
	SampleRows int    // rows synthesized when the file is missing
	Seed       int64  // generator seed for synthesized rows
	Target     string // name of the synthesized target column
	Mem        memory.Allocator
	Logger     *zap.Logger
}

// Source describes where a loaded table came from.
type Source struct {
	Path      string
	Format    tio.Format
	Synthetic bool
	Rows      int
}

// Load reads the table at path, choosing CSV or Parquet by extension. When
// the file does not exist it synthesizes opts.SampleRows rows instead and
// reports Source.Synthetic. Any other I/O error is returned.
func Load(path string, opts Options) (*dataframe.DataFrame, Source, error) {
	opts = opts.withDefaults()
	logger := opts.Logger
	src := Source{Path: path, Format: tio.FormatFromPath(path)}

	f, err := os.Open(path)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, src, fmt.Errorf("opening %s: %w", path, err)
		}
		logger.Warn("data file not found, generating synthetic tracks",
			zap.String("path", path),
			zap.Int("rows", opts.SampleRows),
			zap.Int64("seed", opts.Seed))

		df, err := Synthesize(opts.SampleRows, opts.Seed, opts.Target, opts.Mem)
		if err != nil {
			return nil, src, err
		}
		src.Synthetic = true
		src.Rows = df.Len()
		return df, src, nil
	}
	defer f.Close()

	df, err := tio.NewReader(src.Format, f, opts.Mem).Read()
	if err != nil {
		return nil, src, fmt.Errorf("reading %s: %w", path, err)
	}
	src.Rows = df.Len()
	logger.Info("loaded tracks",
		zap.String("path", path),
		zap.Stringer("format", src.Format),
		zap.Int("rows", df.Len()),
		zap.Int("columns", df.Width()))
	return df, src, nil
}

func (o Options) withDefaults() Options {
	if o.SampleRows <= 0 {
		o.SampleRows = config.DefaultSampleRows
	}
	if o.Seed == 0 {
		o.Seed = config.DefaultRandomState
	}
	if o.Target == "" {
		o.Target = config.DefaultTarget
	}
	if o.Mem == nil {
		o.Mem = memory.NewGoAllocator()
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Loader binds Load, Clean and SplitFeaturesTarget to one configuration.
type Loader struct {
	cfg     config.Config
	logger  *zap.Logger
	mem     memory.Allocator
	metrics *monitoring.MetricsCollector
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithAllocator sets the Arrow allocator used for loaded tables.
func WithAllocator(mem memory.Allocator) LoaderOption {
	return func(l *Loader) { l.mem = mem }
}

// WithMetrics records load and clean timings.
func WithMetrics(mc *monitoring.MetricsCollector) LoaderOption {
	return func(l *Loader) { l.metrics = mc }
}

// NewLoader creates a Loader for cfg.
func NewLoader(cfg config.Config, opts ...LoaderOption) *Loader {
	l := &Loader{cfg: cfg, mem: memory.NewGoAllocator()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrNop(l.logger)
	return l
}

// Prepared is a cleaned table split into model inputs and target.
type Prepared struct {
	Table    *dataframe.DataFrame // cleaned table, owns the column memory
	Features *dataframe.DataFrame // view over Table's feature columns
	Target   []float64
	Source   Source
	Raw      Info // shape and null counts before cleaning
	Report   CleanReport
}

// Release frees the cleaned table.
func (p *Prepared) Release() {
	if p.Table != nil {
		p.Table.Release()
	}
}

// Load reads the configured data path.
func (l *Loader) Load() (*dataframe.DataFrame, Source, error) {
	var (
		df  *dataframe.DataFrame
		src Source
	)
	err := l.metrics.RecordOperation("load", "", 0, func() error {
		var err error
		df, src, err = Load(l.cfg.Data.Path, Options{
			SampleRows: l.cfg.Data.SampleRows,
			Seed:       l.cfg.Split.RandomState,
			Target:     l.cfg.Features.Target,
			Mem:        l.mem,
			Logger:     l.logger,
		})
		return err
	})
	return df, src, err
}

// Clean drops incomplete and duplicate rows, checking nulls in the schema
// columns and the target.
func (l *Loader) Clean(df *dataframe.DataFrame) (*dataframe.DataFrame, CleanReport, error) {
	columns := append(l.cfg.Features.Columns(), l.cfg.Features.Target)
	var (
		cleaned *dataframe.DataFrame
		report  CleanReport
	)
	err := l.metrics.RecordOperation("clean", "", df.Len(), func() error {
		var err error
		cleaned, report, err = Clean(df, columns)
		return err
	})
	if err != nil {
		return nil, report, err
	}
	l.logger.Info("cleaned tracks",
		zap.Int("null_rows_removed", report.NullRowsRemoved),
		zap.Int("duplicates_removed", report.DuplicatesRemoved),
		zap.Int("remaining", report.Remaining))
	return cleaned, report, nil
}

// Prepare loads, cleans and splits the configured dataset.
func (l *Loader) Prepare() (*Prepared, error) {
	raw, src, err := l.Load()
	if err != nil {
		return nil, err
	}
	defer raw.Release()

	if err := validation.ValidateColumns(raw, "Prepare", append(l.cfg.Features.Columns(), l.cfg.Features.Target)...); err != nil {
		return nil, err
	}

	info := Describe(raw)
	cleaned, report, err := l.Clean(raw)
	if err != nil {
		return nil, err
	}
	if cleaned.Len() == 0 {
		cleaned.Release()
		return nil, errors.NewInvalidInputError("Prepare", "no rows left after cleaning")
	}

	features, target, err := SplitFeaturesTarget(cleaned, l.cfg.Features)
	if err != nil {
		cleaned.Release()
		return nil, err
	}
	return &Prepared{
		Table:    cleaned,
		Features: features,
		Target:   target,
		Source:   src,
		Raw:      info,
		Report:   report,
	}, nil
}
