package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/paveg/trackpop/internal/config"
	"github.com/paveg/trackpop/internal/dataframe"
	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/series"
	"github.com/paveg/trackpop/internal/validation"
)

// SplitFeaturesTarget returns the schema's feature columns, numerical first,
// and the target as float64. The feature table shares column memory with df.
func SplitFeaturesTarget(df *dataframe.DataFrame, schema config.FeatureSchema) (*dataframe.DataFrame, []float64, error) {
	const op = "SplitFeaturesTarget"

	if !df.HasColumn(schema.Target) {
		return nil, nil, errors.NewSchemaError(op, schema.Target)
	}
	if err := validation.ValidateColumns(df, op, schema.Columns()...); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateNumericColumn(df, op, schema.Target); err != nil {
		return nil, nil, err
	}

	col, _ := df.Column(schema.Target)
	target, _ := series.Float64Values(col)
	return df.Select(schema.Columns()...), target, nil
}

// TrainTestSplit shuffles 0..n-1 with seed and puts ceil(n*testRatio)
// indices in the test partition and the rest in train.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int, err error) {
	const op = "TrainTestSplit"

	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, errors.NewInvalidInputError(op, fmt.Sprintf("test ratio must be in (0, 1), got %g", testRatio))
	}
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, errors.NewInvalidInputError(op,
			fmt.Sprintf("%d rows with test ratio %g leaves an empty partition", n, testRatio))
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// KFold shuffles 0..n-1 with seed and deals them into folds disjoint
// groups. The first n%folds groups get one extra index.
func KFold(n, folds int, seed int64) ([][]int, error) {
	if folds < 2 || folds > n {
		return nil, errors.NewInvalidInputError("KFold",
			fmt.Sprintf("fold count must be in [2, %d], got %d", n, folds))
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	out := make([][]int, folds)
	base, extra := n/folds, n%folds
	start := 0
	for f := 0; f < folds; f++ {
		size := base
		if f < extra {
			size++
		}
		out[f] = perm[start : start+size]
		start += size
	}
	return out, nil
}

// Complement returns 0..n-1 without the indices in exclude, ascending.
func Complement(n int, exclude []int) []int {
	skip := make([]bool, n)
	for _, i := range exclude {
		skip[i] = true
	}
	out := make([]int, 0, n-len(exclude))
	for i := 0; i < n; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}
