// Package preprocess turns a feature table into the numeric matrix models
// consume: numerical columns are standardized and categorical columns are
// one-hot encoded with the first category dropped.
//
// Fit learns every statistic from the training partition once. The
// resulting FittedTransform is immutable and is applied unchanged to
// validation, test and inference data.
package preprocess

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/validation"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NumericStat holds the standardization parameters of one column.
type NumericStat struct {
	Name  string
	Mean  float64
	Scale float64 // population standard deviation; 0 maps every value to 0
}

// CategoricalEncoding holds the one-hot layout of one column.
type CategoricalEncoding struct {
	Name       string
	Reference  string   // dropped first category
	Categories []string // one indicator column each, in order
}

// FittedTransform is the learned column transformer.
type FittedTransform struct {
	Numeric     []NumericStat
	Categorical []CategoricalEncoding
}

// Preprocessor fits transforms for a feature schema.
type Preprocessor struct {
	schema config.FeatureSchema
}

// New creates a Preprocessor for schema.
func New(schema config.FeatureSchema) *Preprocessor {
	return &Preprocessor{schema: schema}
}

// Fit learns means, scales and category sets from features.
func (p *Preprocessor) Fit(features *dataframe.DataFrame) (*FittedTransform, error) {
	const op = "Fit"

	if err := validation.ValidateColumns(features, op, p.schema.Columns()...); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty(features, op); err != nil {
		return nil, err
	}

	ft := &FittedTransform{
		Numeric:     make([]NumericStat, 0, len(p.schema.Numerical)),
		Categorical: make([]CategoricalEncoding, 0, len(p.schema.Categorical)),
	}

	for _, name := range p.schema.Numerical {
		values, err := numericColumn(features, op, name)
		if err != nil {
			return nil, err
		}
		mean, std := stat.PopMeanStdDev(values, nil)
		ft.Numeric = append(ft.Numeric, NumericStat{Name: name, Mean: mean, Scale: std})
	}

	for _, name := range p.schema.Categorical {
		col, _ := features.Column(name)
		distinct := make(map[string]struct{})
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				return nil, errors.NewSchemaErrorf(op, name, "null value at row %d", i)
			}
			distinct[canonicalText(col.GetAsString(i))] = struct{}{}
		}
		categories := canonicalOrder(distinct)
		ft.Categorical = append(ft.Categorical, CategoricalEncoding{
			Name:       name,
			Reference:  categories[0],
			Categories: categories[1:],
		})
	}

	return ft, nil
}

// FitTransform fits on features and transforms the same table.
func (p *Preprocessor) FitTransform(features *dataframe.DataFrame) (*FittedTransform, *mat.Dense, error) {
	ft, err := p.Fit(features)
	if err != nil {
		return nil, nil, err
	}
	X, err := ft.Transform(features)
	if err != nil {
		return nil, nil, err
	}
	return ft, X, nil
}

// NumFeatures returns the width of the transformed matrix.
func (ft *FittedTransform) NumFeatures() int {
	n := len(ft.Numeric)
	for _, c := range ft.Categorical {
		n += len(c.Categories)
	}
	return n
}

// FeatureNames returns the output column names: numerical names, then
// <feature>_<category> per indicator.
func (ft *FittedTransform) FeatureNames() []string {
	names := make([]string, 0, ft.NumFeatures())
	for _, n := range ft.Numeric {
		names = append(names, n.Name)
	}
	for _, c := range ft.Categorical {
		for _, cat := range c.Categories {
			names = append(names, c.Name+"_"+cat)
		}
	}
	return names
}

// Transform maps features into the fitted layout. Categories never seen
// during Fit, like the reference category, produce an all-zero block.
func (ft *FittedTransform) Transform(features *dataframe.DataFrame) (*mat.Dense, error) {
	const op = "Transform"

	names := make([]string, 0, len(ft.Numeric)+len(ft.Categorical))
	for _, n := range ft.Numeric {
		names = append(names, n.Name)
	}
	for _, c := range ft.Categorical {
		names = append(names, c.Name)
	}
	if err := validation.ValidateColumns(features, op, names...); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty(features, op); err != nil {
		return nil, err
	}

	rows := features.Len()
	X := mat.NewDense(rows, ft.NumFeatures(), nil)

	for j, n := range ft.Numeric {
		values, err := numericColumn(features, op, n.Name)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if n.Scale == 0 {
				continue
			}
			X.Set(i, j, (v-n.Mean)/n.Scale)
		}
	}

	offset := len(ft.Numeric)
	for _, c := range ft.Categorical {
		col, _ := features.Column(c.Name)
		index := make(map[string]int, len(c.Categories))
		for k, cat := range c.Categories {
			index[cat] = k
		}
		for i := 0; i < rows; i++ {
			if col.IsNull(i) {
				return nil, errors.NewSchemaErrorf(op, c.Name, "null value at row %d", i)
			}
			if k, ok := index[canonicalText(col.GetAsString(i))]; ok {
				X.Set(i, offset+k, 1)
			}
		}
		offset += len(c.Categories)
	}

	return X, nil
}

func numericColumn(features *dataframe.DataFrame, op, name string) ([]float64, error) {
	col, _ := features.Column(name)
	values := make([]float64, col.Len())
	for i := range values {
		if col.IsNull(i) {
			return nil, errors.NewSchemaErrorf(op, name, "null value at row %d", i)
		}
		v, ok := col.Float64At(i)
		if !ok {
			return nil, errors.NewSchemaErrorf(op, name, "value %q at row %d is not numeric", col.GetAsString(i), i)
		}
		values[i] = v
	}
	return values, nil
}

// canonicalOrder sorts categories numerically when every one parses as a
// number and lexicographically otherwise.
func canonicalOrder(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}

	numeric := make(map[string]float64, len(out))
	for _, v := range out {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			sort.Strings(out)
			return out
		}
		numeric[v] = f
	}
	sort.Slice(out, func(i, j int) bool {
		if numeric[out[i]] != numeric[out[j]] {
			return numeric[out[i]] < numeric[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// canonicalText normalizes numeric text so a category read as float64 at
// inference ("4") matches one fitted from an int64 column ("4").
func canonicalText(v string) string {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// String summarizes the fitted layout.
func (ft *FittedTransform) String() string {
	return fmt.Sprintf("FittedTransform[numeric=%d, categorical=%d, outputs=%d]",
		len(ft.Numeric), len(ft.Categorical), ft.NumFeatures())
}
