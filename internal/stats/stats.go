// Package stats computes descriptive statistics and Pearson correlations
// over the numeric columns of a table. Nulls are skipped.
package stats

import (
	"math"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Summary describes one numeric column. Std is the sample standard
// deviation and is NaN with fewer than two values; every statistic is NaN
// for a column without values.
type Summary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"25%"`
	Median float64 `json:"50%"`
	Q75    float64 `json:"75%"`
	Max    float64 `json:"max"`
}

// Describe summarizes columns, or every numeric column of df when columns
// is empty.
func Describe(df *dataframe.DataFrame, columns []string) ([]Summary, error) {
	names, err := numericColumns(df, "stats.Describe", columns)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		col, _ := df.Column(name)
		out = append(out, summarize(name, presentValues(col)))
	}
	return out, nil
}

func summarize(name string, values []float64) Summary {
	s := Summary{Column: name, Count: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Q25, s.Median, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s.Mean, s.Std = stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		s.Std = math.NaN()
	}
	s.Min = floats.Min(sorted)
	s.Max = floats.Max(sorted)
	s.Q25 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q75 = quantile(sorted, 0.75)
	return s
}

// quantile interpolates linearly between the order statistics around
// p*(n-1) (Hyndman-Fan type 7). sorted must be ascending and non-empty.
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// CorrelationMatrix holds pairwise Pearson coefficients.
type CorrelationMatrix struct {
	Columns []string
	Values  *mat.SymDense
}

// At returns the coefficient between columns a and b.
func (c *CorrelationMatrix) At(a, b string) (float64, bool) {
	i, j := indexOf(c.Columns, a), indexOf(c.Columns, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return c.Values.At(i, j), true
}

// Correlation computes the Pearson matrix of columns, or of every numeric
// column when columns is empty. Each pair uses the rows where both values
// are present. A pair involving a constant column scores 0; the diagonal
// is always 1.
func Correlation(df *dataframe.DataFrame, columns []string) (*CorrelationMatrix, error) {
	names, err := numericColumns(df, "stats.Correlation", columns)
	if err != nil {
		return nil, err
	}

	cols := make([][]float64, len(names))
	valid := make([][]bool, len(names))
	for i, name := range names {
		col, _ := df.Column(name)
		cols[i], valid[i] = series.Float64Values(col)
	}

	m := mat.NewSymDense(len(names), nil)
	for i := range names {
		m.SetSym(i, i, 1)
		for j := i + 1; j < len(names); j++ {
			m.SetSym(i, j, pearson(cols[i], valid[i], cols[j], valid[j]))
		}
	}
	return &CorrelationMatrix{Columns: names, Values: m}, nil
}

// TargetCorrelation is one feature's correlation with the target.
type TargetCorrelation struct {
	Feature     string  `json:"feature"`
	Correlation float64 `json:"correlation"`
}

// TargetCorrelations correlates each feature with target and sorts the
// result by absolute value, strongest first.
func TargetCorrelations(df *dataframe.DataFrame, features []string, target string) ([]TargetCorrelation, error) {
	const op = "stats.TargetCorrelations"
	if _, err := numericColumns(df, op, []string{target}); err != nil {
		return nil, err
	}
	names, err := numericColumns(df, op, features)
	if err != nil {
		return nil, err
	}

	tcol, _ := df.Column(target)
	ty, tvalid := series.Float64Values(tcol)

	out := make([]TargetCorrelation, 0, len(names))
	for _, name := range names {
		if name == target {
			continue
		}
		col, _ := df.Column(name)
		x, valid := series.Float64Values(col)
		out = append(out, TargetCorrelation{Feature: name, Correlation: pearson(x, valid, ty, tvalid)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Correlation) > math.Abs(out[j].Correlation)
	})
	return out, nil
}

func pearson(x []float64, xValid []bool, y []float64, yValid []bool) float64 {
	a := make([]float64, 0, len(x))
	b := make([]float64, 0, len(y))
	for i := range x {
		if xValid[i] && yValid[i] {
			a = append(a, x[i])
			b = append(b, y[i])
		}
	}
	if len(a) < 2 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func numericColumns(df *dataframe.DataFrame, op string, columns []string) ([]string, error) {
	if len(columns) == 0 {
		var names []string
		for _, name := range df.Columns() {
			col, _ := df.Column(name)
			if isNumeric(col) {
				names = append(names, name)
			}
		}
		return names, nil
	}

	for _, name := range columns {
		col, ok := df.Column(name)
		if !ok {
			return nil, errors.NewSchemaError(op, name)
		}
		if !isNumeric(col) {
			return nil, errors.NewSchemaErrorf(op, name, "column of type %s is not numeric", col.DataType())
		}
	}
	return columns, nil
}

func isNumeric(col series.Column) bool {
	switch col.DataType().ID() {
	case arrow.INT64, arrow.FLOAT64, arrow.INT32, arrow.FLOAT32:
		return true
	default:
		return false
	}
}

func presentValues(col series.Column) []float64 {
	values, valid := series.Float64Values(col)
	out := values[:0]
	for i, v := range values {
		if valid[i] {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
