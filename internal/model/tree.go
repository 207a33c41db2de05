package model

import (
	"math"
	"math/rand"
	"sort"

	"github.com/paveg/trackpop/internal/parallel"
)

// Node is one node of a fitted regression tree. Rows with
// x[Feature] <= Threshold go to Left.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
	Leaf      bool
}

// Tree is a fitted regression tree stored as a flat node list; Nodes[0]
// is the root.
type Tree struct {
	Nodes []Node
}

func (t *Tree) predictRow(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// parallelSplitRows is the node size from which split search fans out
// across features.
const parallelSplitRows = 2048

// treeBuilder grows one tree over per-row gradients and hessians. With
// hessians of 1, no regularization and gradients -y, split gain equals the
// reduction in squared error and leaf values are the mean target, the
// classic CART regression tree.
type treeBuilder struct {
	cols [][]float64
	grad []float64
	hess []float64

	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	minChildWeight  float64
	lambda          float64
	gamma           float64
	halfGain        bool

	features    []int // candidate features for this tree
	maxFeatures int   // features sampled per split; <= 0 uses all candidates
	rng         *rand.Rand
	pool        *parallel.WorkerPool

	nodes      []Node
	importance []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	ok        bool
}

func (b *treeBuilder) build(rows []int) Tree {
	b.nodes = b.nodes[:0]
	if b.importance == nil {
		b.importance = make([]float64, len(b.cols))
	}
	if b.features == nil {
		b.features = make([]int, len(b.cols))
		for j := range b.features {
			b.features[j] = j
		}
	}
	b.grow(rows, 0)
	return Tree{Nodes: append([]Node(nil), b.nodes...)}
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	var G, H float64
	minG, maxG := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		G += b.grad[r]
		H += b.hess[r]
		minG = math.Min(minG, b.grad[r])
		maxG = math.Max(maxG, b.grad[r])
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Value: -G / (H + b.lambda), Samples: len(rows), Leaf: true})

	if len(rows) < b.minSamplesSplit ||
		(b.maxDepth > 0 && depth >= b.maxDepth) ||
		minG == maxG ||
		H < 2*b.minChildWeight {
		return id
	}

	best := b.bestSplit(rows, G, H)
	if !best.ok {
		return id
	}

	col := b.cols[best.feature]
	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if col[r] <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	b.importance[best.feature] += best.gain
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	n := &b.nodes[id]
	n.Leaf = false
	n.Feature = best.feature
	n.Threshold = best.threshold
	n.Left = l
	n.Right = r
	return id
}

func (b *treeBuilder) candidates() []int {
	k := b.maxFeatures
	if k <= 0 || k >= len(b.features) {
		return b.features
	}
	perm := b.rng.Perm(len(b.features))[:k]
	out := make([]int, k)
	for i, p := range perm {
		out[i] = b.features[p]
	}
	return out
}

func (b *treeBuilder) bestSplit(rows []int, G, H float64) split {
	feats := b.candidates()
	parent := G * G / (H + b.lambda)

	var results []split
	if b.pool != nil && len(rows) >= parallelSplitRows && len(feats) > 1 {
		results = parallel.ProcessIndexed(b.pool, feats, func(_ int, f int) split {
			return b.scanFeature(f, rows, G, H, parent)
		})
	} else {
		results = make([]split, len(feats))
		for i, f := range feats {
			results[i] = b.scanFeature(f, rows, G, H, parent)
		}
	}

	var best split
	for _, s := range results {
		if s.ok && (!best.ok || s.gain > best.gain) {
			best = s
		}
	}
	return best
}

// scanFeature sweeps the sorted values of feature f and returns the best
// threshold between distinct neighbours.
func (b *treeBuilder) scanFeature(f int, rows []int, G, H, parent float64) split {
	col := b.cols[f]
	sorted := append([]int(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return col[sorted[i]] < col[sorted[j]] })

	best := split{feature: f}
	var GL, HL float64
	n := len(sorted)
	for i := 0; i < n-1; i++ {
		r := sorted[i]
		GL += b.grad[r]
		HL += b.hess[r]
		nL := i + 1
		if col[r] == col[sorted[i+1]] {
			continue
		}
		if nL < b.minSamplesLeaf || n-nL < b.minSamplesLeaf {
			continue
		}
		GR, HR := G-GL, H-HL
		if HL < b.minChildWeight || HR < b.minChildWeight {
			continue
		}

		gain := GL*GL/(HL+b.lambda) + GR*GR/(HR+b.lambda) - parent
		if b.halfGain {
			gain = gain/2 - b.gamma
		}
		if gain > minGain && (!best.ok || gain > best.gain) {
			best.gain = gain
			best.threshold = (col[r] + col[sorted[i+1]]) / 2
			best.ok = true
		}
	}
	return best
}

const minGain = 1e-12
