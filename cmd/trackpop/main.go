package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/paveg/trackpop"
	"github.com/paveg/trackpop/internal/logging"
	"github.com/paveg/trackpop/internal/version"
	"go.uber.org/zap"
)

func customUsage() {
	fmt.Fprintf(os.Stderr, "trackpop: music track popularity models (version %s)\n\n", version.Version)
	fmt.Fprintf(os.Stderr, "Usage: trackpop [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands (pick one):\n")
	fmt.Fprintf(os.Stderr, "  --describe\n\t\tSummarize the dataset and its correlation with the target\n")
	fmt.Fprintf(os.Stderr, "  --train\n\t\tTrain --model, print its metrics and save the artifact\n")
	fmt.Fprintf(os.Stderr, "  --compare\n\t\tTrain every model (or --model, comma separated) and rank them by test R²\n")
	fmt.Fprintf(os.Stderr, "  --predict\n\t\tScore --input with a saved artifact and write CSV to --output\n")
	fmt.Fprintf(os.Stderr, "  --export PATH\n\t\tWrite the cleaned dataset as CSV, JSON or Parquet\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	fmt.Fprintf(os.Stderr, "  --config PATH\n\t\tYAML or JSON configuration file\n")
	fmt.Fprintf(os.Stderr, "  --data PATH\n\t\tDataset path, overrides the configuration\n")
	fmt.Fprintf(os.Stderr, "  --model NAME\n\t\tModel kind: %s (default: xgboost)\n", strings.Join(trackpop.SupportedModels(), ", "))
	fmt.Fprintf(os.Stderr, "  --artifact PATH\n\t\tArtifact to save or load (default: <artifacts dir>/<model>.tpop)\n")
	fmt.Fprintf(os.Stderr, "  --input PATH\n\t\tTracks to score: CSV, Parquet, or JSON records\n")
	fmt.Fprintf(os.Stderr, "  --output PATH\n\t\tPrediction output (default: stdout)\n")
	fmt.Fprintf(os.Stderr, "  --json\n\t\tPrint results as JSON\n")
	fmt.Fprintf(os.Stderr, "  --log-level LEVEL\n\t\tdebug, info, warn or error\n")
	fmt.Fprintf(os.Stderr, "  -v, --version\n\t\tPrint version information and exit\n")
	fmt.Fprintf(os.Stderr, "  -h, --help\n\t\tShow this help message and exit\n")
}

type options struct {
	configPath string
	dataPath   string
	model      string
	artifact   string
	input      string
	output     string
	export     string
	logLevel   string
	asJSON     bool
}

func main() {
	versionFlag := flag.Bool("v", false, "Print version and exit")
	flag.BoolVar(versionFlag, "version", false, "Print version and exit") // alias
	describeFlag := flag.Bool("describe", false, "Summarize the dataset")
	trainFlag := flag.Bool("train", false, "Train one model")
	compareFlag := flag.Bool("compare", false, "Train and rank models")
	predictFlag := flag.Bool("predict", false, "Score tracks with a saved artifact")

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Configuration file")
	flag.StringVar(&opts.dataPath, "data", "", "Dataset path")
	flag.StringVar(&opts.model, "model", "", "Model kind")
	flag.StringVar(&opts.artifact, "artifact", "", "Artifact path")
	flag.StringVar(&opts.input, "input", "", "Tracks to score")
	flag.StringVar(&opts.output, "output", "", "Prediction output")
	flag.StringVar(&opts.export, "export", "", "Write the cleaned dataset to this path")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level")
	flag.BoolVar(&opts.asJSON, "json", false, "Print results as JSON")

	//nolint:reassign // Standard Go pattern for customizing flag usage message
	flag.Usage = customUsage

	flag.Parse()

	if *versionFlag {
		fmt.Print(version.Info().String())
		return
	}

	var run func(*trackpop.Predictor, options) error
	switch {
	case *describeFlag:
		run = runDescribe
	case *trainFlag:
		run = runTrain
	case *compareFlag:
		run = runCompare
	case *predictFlag:
		run = runPredict
	case opts.export != "":
		run = runExport
	default:
		flag.Usage()
		os.Exit(1)
	}

	p, logger, mc, err := setup(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackpop: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	err = run(p, opts)
	if mc.IsEnabled() {
		for _, m := range mc.GetMetrics() {
			logger.Info("operation timing",
				zap.String("operation", m.Operation),
				zap.String("model", m.Model),
				zap.Duration("duration", m.Duration),
				zap.Int64("rows", m.RowsProcessed),
				zap.Int64("allocated_bytes", m.MemoryUsed),
				zap.Bool("failed", m.Failed))
		}
	}
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "trackpop: %v\n", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func setup(opts options) (*trackpop.Predictor, *zap.Logger, *trackpop.MetricsCollector, error) {
	cfg := trackpop.NewConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = trackpop.LoadConfig(opts.configPath); err != nil {
			return nil, nil, nil, err
		}
	}
	if opts.dataPath != "" {
		cfg.Data.Path = opts.dataPath
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return nil, nil, nil, err
	}

	mc := trackpop.NewMetricsCollector(cfg.MetricsCollection)
	p, err := trackpop.New(cfg,
		trackpop.WithLogger(logger),
		trackpop.WithMetrics(mc),
		trackpop.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, nil, nil, err
	}
	return p, logger, mc, nil
}

func modelOrDefault(name string) string {
	if name == "" {
		return string(trackpop.XGBoost)
	}
	return name
}

func runDescribe(p *trackpop.Predictor, opts options) error {
	ds, err := p.LoadDataset()
	if err != nil {
		return err
	}
	defer ds.Release()

	schema := p.Config().Features
	summaries, err := trackpop.Describe(ds.Table, append(append([]string{}, schema.Numerical...), schema.Target)...)
	if err != nil {
		return err
	}
	correlations, err := trackpop.TargetCorrelations(ds.Table, schema.Numerical, schema.Target)
	if err != nil {
		return err
	}

	if opts.asJSON {
		return printJSON(map[string]any{
			"rows":               ds.Table.Len(),
			"raw":                ds.Raw,
			"synthetic":          ds.Synthetic,
			"null_rows_removed":  ds.NullRowsRemoved,
			"duplicates_removed": ds.DuplicatesRemoved,
			"summary":            jsonSafeSummaries(summaries),
			"target_correlation": correlations,
		})
	}

	fmt.Printf("Dataset: %s (%d rows, %d columns", ds.Path, ds.Table.Len(), ds.Table.Width())
	if ds.Synthetic {
		fmt.Print(", synthetic")
	}
	fmt.Printf(")\nRemoved %d incomplete and %d duplicate rows\n\n", ds.NullRowsRemoved, ds.DuplicatesRemoved)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "column\ttype\tmissing (raw)")
	for _, name := range ds.Raw.Columns {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", name, ds.Raw.DataTypes[name], ds.Raw.MissingValues[name])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Println()

	tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "column\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
			s.Column, s.Count, s.Mean, s.Std, s.Min, s.Q25, s.Median, s.Q75, s.Max)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nCorrelation with %s:\n", schema.Target)
	tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, c := range correlations {
		fmt.Fprintf(tw, "  %s\t%+.4f\n", c.Feature, c.Correlation)
	}
	return tw.Flush()
}

// jsonSafeSummaries replaces NaN, which JSON cannot encode, with nil.
func jsonSafeSummaries(summaries []trackpop.Summary) []map[string]any {
	out := make([]map[string]any, len(summaries))
	value := func(v float64) any {
		if math.IsNaN(v) {
			return nil
		}
		return v
	}
	for i, s := range summaries {
		out[i] = map[string]any{
			"column": s.Column, "count": s.Count,
			"mean": value(s.Mean), "std": value(s.Std), "min": value(s.Min),
			"25%": value(s.Q25), "50%": value(s.Median), "75%": value(s.Q75), "max": value(s.Max),
		}
	}
	return out
}

func runTrain(p *trackpop.Predictor, opts options) error {
	ds, err := p.LoadDataset()
	if err != nil {
		return err
	}
	defer ds.Release()

	result, err := p.Train(ds.Features, ds.Target, modelOrDefault(opts.model))
	if err != nil {
		return err
	}
	path, err := p.Save(string(result.Kind), opts.artifact)
	if err != nil {
		return err
	}

	if opts.asJSON {
		return printJSON(map[string]any{"result": result, "artifact": path})
	}

	fmt.Printf("Model: %s (train %d rows, test %d rows)\n\n", result.Kind, result.TrainSize, result.TestSize)
	printMetrics(result.Metrics)
	if len(result.Importances) > 0 {
		fmt.Println("\nTop features:")
		for i, imp := range result.Importances {
			if i == 10 {
				break
			}
			fmt.Printf("  %-28s %.4f\n", imp.Feature, imp.Importance)
		}
	}
	fmt.Printf("\nSaved %s\n", path)
	return nil
}

func printMetrics(m trackpop.Metrics) {
	for _, key := range m.Keys() {
		fmt.Printf("  %-14s %.4f\n", key, m[key])
	}
}

func runCompare(p *trackpop.Predictor, opts options) error {
	ds, err := p.LoadDataset()
	if err != nil {
		return err
	}
	defer ds.Release()

	var kinds []string
	if opts.model != "" {
		kinds = strings.Split(opts.model, ",")
	}
	comparison, best, err := p.TrainAll(ds.Features, ds.Target, kinds...)
	if err != nil {
		return err
	}

	artifact := opts.artifact
	if artifact == "" {
		artifact = filepath.Join(p.Config().Artifacts.Dir, "best_model.tpop")
	}
	path, err := p.Save(string(best), artifact)
	if err != nil {
		return err
	}

	rows := comparison.Rows("test_r2")
	if opts.asJSON {
		return printJSON(map[string]any{"best": best, "models": rows, "artifact": path})
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "model\ttest_r2\ttest_rmse\ttest_mae\tcv_r2_mean\tcv_r2_std\t")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n", row.Kind,
			row.Metrics["test_r2"], row.Metrics["test_rmse"], row.Metrics["test_mae"],
			row.Metrics["cv_r2_mean"], row.Metrics["cv_r2_std"])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nBest model: %s, saved to %s\n", best, path)
	return nil
}

func runPredict(p *trackpop.Predictor, opts options) error {
	if opts.input == "" {
		return fmt.Errorf("--predict needs --input")
	}

	kind := modelOrDefault(opts.model)
	artifact := opts.artifact
	if artifact == "" {
		artifact = filepath.Join(p.Config().Artifacts.Dir, kind+".tpop")
	}
	loaded, err := p.Load(artifact, opts.model)
	if err != nil {
		return err
	}

	mem := memory.NewGoAllocator()
	return trackpop.WithMemoryManager(mem, func(mm *trackpop.MemoryManager) error {
		input, ids, err := readInput(opts.input, mem)
		if err != nil {
			return err
		}
		mm.Track(input)

		scores, err := p.PredictChunked(input, string(loaded), trackpop.DefaultChunkSize)
		if err != nil {
			return err
		}

		categories := make([]string, len(scores))
		confidence := make([]string, len(scores))
		for i, s := range scores {
			c := p.Categorize(s)
			categories[i] = string(c)
			confidence[i] = c.Confidence()
		}
		out := trackpop.NewDataFrame(
			trackpop.NewSeries("track_id", ids, mem),
			trackpop.NewSeries("popularity", scores, mem),
			trackpop.NewSeries("category", categories, mem),
			trackpop.NewSeries("confidence", confidence, mem),
		)
		mm.Track(out)

		if opts.output == "" {
			return trackpop.Write(os.Stdout, trackpop.FormatCSV, out)
		}
		return trackpop.WriteFile(opts.output, out)
	})
}

// readInput loads tracks to score. JSON input is decoded as records and
// range-checked; tables keep their track_id column when present.
func readInput(path string, mem memory.Allocator) (*trackpop.DataFrame, []string, error) {
	if trackpop.FormatFromPath(path) == trackpop.FormatJSON {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		records, err := trackpop.DecodeRecords(f)
		if err != nil {
			return nil, nil, err
		}
		for i, r := range records {
			if err := r.Validate(); err != nil {
				return nil, nil, fmt.Errorf("record %d: %w", i, err)
			}
		}
		ids := make([]string, len(records))
		for i := range ids {
			ids[i] = fmt.Sprintf("record_%d", i)
		}
		return trackpop.RecordsFrame(records, mem), ids, nil
	}

	df, err := trackpop.ReadFile(path, mem)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, df.Len())
	col, ok := df.Column("track_id")
	for i := range ids {
		if ok {
			ids[i] = col.GetAsString(i)
		} else {
			ids[i] = fmt.Sprintf("row_%d", i)
		}
	}
	return df, ids, nil
}

func runExport(p *trackpop.Predictor, opts options) error {
	ds, err := p.LoadDataset()
	if err != nil {
		return err
	}
	defer ds.Release()

	if err := trackpop.WriteFile(opts.export, ds.Table); err != nil {
		return err
	}
	fmt.Printf("Wrote %d rows to %s (%s)\n", ds.Table.Len(), opts.export, trackpop.FormatFromPath(opts.export))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
