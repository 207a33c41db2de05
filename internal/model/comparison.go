package model

import (
	"fmt"
	"sort"

	"github.com/paveg/trackpop/internal/errors"
	"gonum.org/v1/gonum/mat"
)

// ComparisonRow is one model's metrics in a comparison.
type ComparisonRow struct {
	Kind    Kind    `json:"model"`
	Metrics Metrics `json:"metrics"`
}

// Comparison collects metrics of several models evaluated on the same
// split.
type Comparison struct {
	rows []ComparisonRow
}

// NewComparison creates an empty comparison.
func NewComparison() *Comparison {
	return &Comparison{}
}

// Add records metrics for kind, replacing an earlier entry.
func (c *Comparison) Add(kind Kind, metrics Metrics) {
	row := ComparisonRow{Kind: kind, Metrics: metrics.Clone()}
	for i := range c.rows {
		if c.rows[i].Kind == kind {
			c.rows[i] = row
			return
		}
	}
	c.rows = append(c.rows, row)
}

// Len returns the number of models compared.
func (c *Comparison) Len() int { return len(c.rows) }

// Metrics returns a copy of kind's metrics.
func (c *Comparison) Metrics(kind Kind) (Metrics, bool) {
	for _, r := range c.rows {
		if r.Kind == kind {
			return r.Metrics.Clone(), true
		}
	}
	return nil, false
}

// Best returns the kind with the best value of metric: the minimum for
// error metrics, the maximum otherwise. Ties keep insertion order.
func (c *Comparison) Best(metric string) (Kind, float64, error) {
	rows := c.Rows(metric)
	if len(rows) == 0 {
		return "", 0, errors.NewInvalidInputError("Comparison.Best", fmt.Sprintf("no model reports %q", metric))
	}
	return rows[0].Kind, rows[0].Metrics[metric], nil
}

// Rows returns copies of the models reporting metric, best first.
func (c *Comparison) Rows(metric string) []ComparisonRow {
	out := make([]ComparisonRow, 0, len(c.rows))
	for _, r := range c.rows {
		if _, ok := r.Metrics[metric]; ok {
			out = append(out, ComparisonRow{Kind: r.Kind, Metrics: r.Metrics.Clone()})
		}
	}
	lower := LowerIsBetter(metric)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Metrics[metric], out[j].Metrics[metric]
		if lower {
			return a < b
		}
		return a > b
	})
	return out
}

// Compare fits a fresh estimator per params on the training partition and
// records train_ and test_ metrics for each.
func Compare(params []Params, Xtrain mat.Matrix, ytrain []float64, Xtest mat.Matrix, ytest []float64) (*Comparison, error) {
	c := NewComparison()
	for _, p := range params {
		est, err := New(p)
		if err != nil {
			return nil, err
		}
		if err := est.Fit(Xtrain, ytrain); err != nil {
			return nil, fmt.Errorf("fitting %s: %w", p.Kind(), err)
		}
		train, err := Evaluate(est, Xtrain, ytrain)
		if err != nil {
			return nil, err
		}
		test, err := Evaluate(est, Xtest, ytest)
		if err != nil {
			return nil, err
		}
		c.Add(p.Kind(), train.WithPrefix("train_").Merge(test.WithPrefix("test_")))
	}
	return c, nil
}
