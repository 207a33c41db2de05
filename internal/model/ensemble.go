package model

import (
	"math/rand"
	"sort"

	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// RandomForest averages regression trees grown on bootstrap samples with
// per-split feature subsampling.
type RandomForest struct {
	Hyper      RandomForestParams
	Trees      []Tree
	Importance []float64
	NFeatures  int
	IsFitted   bool
}

func (m *RandomForest) Kind() Kind     { return KindRandomForest }
func (m *RandomForest) Params() Params { return m.Hyper }
func (m *RandomForest) Fitted() bool   { return m.IsFitted }

type forestTree struct {
	tree       Tree
	importance []float64
}

// Fit grows NEstimators trees on a pool of NJobs workers. Each tree draws
// its own seed from RandomState up front, so the fitted forest does not
// depend on scheduling.
func (m *RandomForest) Fit(X mat.Matrix, y []float64) error {
	d, err := checkTrainingData("random_forest.Fit", X, y)
	if err != nil {
		return err
	}
	n, p := d.Dims()
	cols := columns(d)
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}

	maxFeatures := int(m.Hyper.MaxFeatures * float64(p))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	master := rand.New(rand.NewSource(m.Hyper.RandomState))
	seeds := make([]int64, m.Hyper.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	pool := parallel.NewWorkerPool(m.Hyper.NJobs)
	defer pool.Close()

	fitted, err := parallel.TryProcessIndexed(pool, seeds, func(_ int, seed int64) (forestTree, error) {
		rng := rand.New(rand.NewSource(seed))
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		b := &treeBuilder{
			cols:            cols,
			grad:            grad,
			hess:            hess,
			maxDepth:        m.Hyper.MaxDepth,
			minSamplesSplit: m.Hyper.MinSamplesSplit,
			minSamplesLeaf:  m.Hyper.MinSamplesLeaf,
			maxFeatures:     maxFeatures,
			rng:             rng,
		}
		tree := b.build(sample)
		return forestTree{tree: tree, importance: normalize(b.importance)}, nil
	})
	if err != nil {
		return err
	}

	m.Trees = make([]Tree, len(fitted))
	m.Importance = make([]float64, p)
	for i, ft := range fitted {
		m.Trees[i] = ft.tree
		for j, v := range ft.importance {
			m.Importance[j] += v
		}
	}
	normalize(m.Importance)
	m.NFeatures = p
	m.IsFitted = true
	return nil
}

// Predict averages the trees' predictions.
func (m *RandomForest) Predict(X mat.Matrix) ([]float64, error) {
	const op = "random_forest.Predict"
	if !m.IsFitted {
		return nil, errors.NewNotFittedError(op, string(KindRandomForest))
	}
	d, err := checkPredictData(op, X, m.NFeatures)
	if err != nil {
		return nil, err
	}
	return predictTrees(d, 0, 1/float64(len(m.Trees)), m.Trees), nil
}

// Importances returns the mean impurity decrease per feature.
func (m *RandomForest) Importances() ([]float64, bool) {
	if !m.IsFitted {
		return nil, false
	}
	return append([]float64(nil), m.Importance...), true
}

// GradientBoosting fits shallow trees to least-squares residuals, starting
// from the target mean.
type GradientBoosting struct {
	Hyper      GradientBoostingParams
	Init       float64
	Trees      []Tree
	Importance []float64
	NFeatures  int
	IsFitted   bool
}

func (m *GradientBoosting) Kind() Kind     { return KindGradientBoosting }
func (m *GradientBoosting) Params() Params { return m.Hyper }
func (m *GradientBoosting) Fitted() bool   { return m.IsFitted }

// Fit runs NEstimators boosting rounds. Subsample < 1 fits each round on a
// random fraction of rows drawn without replacement.
func (m *GradientBoosting) Fit(X mat.Matrix, y []float64) error {
	d, err := checkTrainingData("gradient_boosting.Fit", X, y)
	if err != nil {
		return err
	}
	n, p := d.Dims()
	cols := columns(d)
	rows := rowMajor(d)
	rng := rand.New(rand.NewSource(m.Hyper.RandomState))

	start := mean(y)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = start
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range hess {
		hess[i] = 1
	}

	b := &treeBuilder{
		cols:            cols,
		grad:            grad,
		hess:            hess,
		maxDepth:        m.Hyper.MaxDepth,
		minSamplesSplit: m.Hyper.MinSamplesSplit,
		minSamplesLeaf:  m.Hyper.MinSamplesLeaf,
		rng:             rng,
	}

	trees := make([]Tree, 0, m.Hyper.NEstimators)
	for round := 0; round < m.Hyper.NEstimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		tree := b.build(subsample(rng, n, m.Hyper.Subsample))
		for i, row := range rows {
			pred[i] += m.Hyper.LearningRate * tree.predictRow(row)
		}
		trees = append(trees, tree)
	}

	m.Init = start
	m.Trees = trees
	m.Importance = normalize(b.importance)
	m.NFeatures = p
	m.IsFitted = true
	return nil
}

// Predict returns Init plus the shrunken sum of tree outputs.
func (m *GradientBoosting) Predict(X mat.Matrix) ([]float64, error) {
	const op = "gradient_boosting.Predict"
	if !m.IsFitted {
		return nil, errors.NewNotFittedError(op, string(KindGradientBoosting))
	}
	d, err := checkPredictData(op, X, m.NFeatures)
	if err != nil {
		return nil, err
	}
	return predictTrees(d, m.Init, m.Hyper.LearningRate, m.Trees), nil
}

// Importances returns the total squared-error reduction per feature.
func (m *GradientBoosting) Importances() ([]float64, bool) {
	if !m.IsFitted {
		return nil, false
	}
	return append([]float64(nil), m.Importance...), true
}

// XGBoost boosts trees on first and second order gradients of squared
// error with L2-regularized leaf weights, a minimum split gain Gamma and
// per-tree row and column subsampling.
type XGBoost struct {
	Hyper      XGBoostParams
	Base       float64
	Trees      []Tree
	Importance []float64
	NFeatures  int
	IsFitted   bool
}

func (m *XGBoost) Kind() Kind     { return KindXGBoost }
func (m *XGBoost) Params() Params { return m.Hyper }
func (m *XGBoost) Fitted() bool   { return m.IsFitted }

// Fit runs NEstimators rounds starting from the target mean. Split search
// on large nodes runs on a pool of NJobs workers.
func (m *XGBoost) Fit(X mat.Matrix, y []float64) error {
	d, err := checkTrainingData("xgboost.Fit", X, y)
	if err != nil {
		return err
	}
	n, p := d.Dims()
	cols := columns(d)
	rows := rowMajor(d)
	rng := rand.New(rand.NewSource(m.Hyper.RandomState))

	pool := parallel.NewWorkerPool(m.Hyper.NJobs)
	defer pool.Close()

	base := mean(y)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range hess {
		hess[i] = 1
	}

	perTree := int(m.Hyper.ColsampleByTree * float64(p))
	if perTree < 1 {
		perTree = 1
	}

	b := &treeBuilder{
		cols:            cols,
		grad:            grad,
		hess:            hess,
		maxDepth:        m.Hyper.MaxDepth,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		minChildWeight:  m.Hyper.MinChildWeight,
		lambda:          m.Hyper.Lambda,
		gamma:           m.Hyper.Gamma,
		halfGain:        true,
		rng:             rng,
		pool:            pool,
	}

	trees := make([]Tree, 0, m.Hyper.NEstimators)
	for round := 0; round < m.Hyper.NEstimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		b.features = sampleFeatures(rng, p, perTree)
		tree := b.build(subsample(rng, n, m.Hyper.Subsample))
		for i, row := range rows {
			pred[i] += m.Hyper.LearningRate * tree.predictRow(row)
		}
		trees = append(trees, tree)
	}

	m.Base = base
	m.Trees = trees
	m.Importance = normalize(b.importance)
	m.NFeatures = p
	m.IsFitted = true
	return nil
}

// Predict returns Base plus the shrunken sum of tree outputs.
func (m *XGBoost) Predict(X mat.Matrix) ([]float64, error) {
	const op = "xgboost.Predict"
	if !m.IsFitted {
		return nil, errors.NewNotFittedError(op, string(KindXGBoost))
	}
	d, err := checkPredictData(op, X, m.NFeatures)
	if err != nil {
		return nil, err
	}
	return predictTrees(d, m.Base, m.Hyper.LearningRate, m.Trees), nil
}

// Importances returns the total split gain per feature.
func (m *XGBoost) Importances() ([]float64, bool) {
	if !m.IsFitted {
		return nil, false
	}
	return append([]float64(nil), m.Importance...), true
}

// predictTrees returns base + scale*sum(tree(x)) per row of d. A nil d
// yields an empty result.
func predictTrees(d *mat.Dense, base, scale float64, trees []Tree) []float64 {
	if d == nil {
		return []float64{}
	}
	rows := rowMajor(d)
	out := make([]float64, len(rows))
	for i, row := range rows {
		var s float64
		for t := range trees {
			s += trees[t].predictRow(row)
		}
		out[i] = base + scale*s
	}
	return out
}

func rowMajor(d *mat.Dense) [][]float64 {
	n, p := d.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(make([]float64, p), i, d)
	}
	return rows
}

// subsample draws max(1, fraction*n) distinct rows; fraction 1 returns
// every row in order.
func subsample(rng *rand.Rand, n int, fraction float64) []int {
	if fraction >= 1 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	k := int(fraction * float64(n))
	if k < 1 {
		k = 1
	}
	return rng.Perm(n)[:k]
}

// sampleFeatures picks k distinct features in ascending order.
func sampleFeatures(rng *rand.Rand, p, k int) []int {
	if k >= p {
		all := make([]int, p)
		for j := range all {
			all[j] = j
		}
		return all
	}
	features := rng.Perm(p)[:k]
	sort.Ints(features)
	return features
}
