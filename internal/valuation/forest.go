package valuation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyTrainingSet  = errors.New("training set is empty")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
)

// Params control forest construction
type Params struct {
	Trees          int
	Seed           int64
	MinSamplesLeaf int
	MaxDepth       int // 0 = unlimited
	Workers        int
	Features       []string
}

// DefaultParams mirrors a 100-tree forest seeded with 42
func DefaultParams() Params {
	return Params{Trees: 100, Seed: 42, MinSamplesLeaf: 1, Workers: runtime.NumCPU()}
}

// Model is a fitted random-forest regressor. It is immutable after Fit
// and safe for concurrent Predict calls.
type Model struct {
	trees     []*tree
	nFeatures int
	features  []string
	params    Params
}

type node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

type tree struct {
	Nodes []node
}

// Fit grows params.Trees regression trees on bootstrap samples of X.
// Each tree's sample depends only on Seed and its index, so the fitted
// structure does not depend on Workers or scheduling.
func Fit(ctx context.Context, X [][]float64, y []float64, params Params) (*Model, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d targets", ErrDimensionMismatch, len(X), len(y))
	}
	k := len(X[0])
	if k == 0 {
		return nil, fmt.Errorf("%w: rows have no features", ErrDimensionMismatch)
	}
	for i, row := range X {
		if len(row) != k {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrDimensionMismatch, i, len(row), k)
		}
	}
	if params.Features != nil && len(params.Features) != k {
		return nil, fmt.Errorf("%w: %d feature names for %d columns", ErrDimensionMismatch, len(params.Features), k)
	}
	if params.Trees <= 0 {
		return nil, fmt.Errorf("tree count must be positive, got %d", params.Trees)
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	if params.Workers < 1 {
		params.Workers = 1
	}

	master := rand.New(rand.NewSource(params.Seed))
	seeds := make([]int64, params.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*tree, params.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := make([]int, len(X))
			for j := range sample {
				sample[j] = rng.Intn(len(X))
			}
			trees[i] = growTree(X, y, sample, params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	return &Model{
		trees:     trees,
		nFeatures: k,
		features:  append([]string(nil), params.Features...),
		params:    params,
	}, nil
}

// Predict returns one estimate per row of X
func (m *Model) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		v, err := m.PredictOne(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// PredictOne averages the trees' estimates for a single feature vector
func (m *Model) PredictOne(x []float64) (float64, error) {
	if len(x) != m.nFeatures {
		return 0, fmt.Errorf("%w: got %d features, expected %d", ErrDimensionMismatch, len(x), m.nFeatures)
	}
	var sum float64
	for _, t := range m.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(m.trees)), nil
}

// Features returns the column names the model was fit with, if any
func (m *Model) Features() []string {
	return append([]string(nil), m.features...)
}

// NumTrees returns the size of the ensemble
func (m *Model) NumTrees() int { return len(m.trees) }

// Seed returns the seed the forest was fit with
func (m *Model) Seed() int64 { return m.params.Seed }

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// grower builds one tree. sorted[f] holds the bootstrap sample ordered by
// feature f; every node owns the same [lo, hi) segment of each of them, so
// the sample is sorted once per tree instead of once per node.
type grower struct {
	X       [][]float64
	y       []float64
	params  Params
	nodes   []node
	sorted  [][]int
	scratch []int
}

func newGrower(X [][]float64, y []float64, sample []int, params Params) *grower {
	k := len(X[0])
	g := &grower{
		X:       X,
		y:       y,
		params:  params,
		sorted:  make([][]int, k),
		scratch: make([]int, len(sample)),
	}
	for f := 0; f < k; f++ {
		order := append([]int(nil), sample...)
		sort.SliceStable(order, func(a, b int) bool {
			return X[order[a]][f] < X[order[b]][f]
		})
		g.sorted[f] = order
	}
	return g
}

func growTree(X [][]float64, y []float64, sample []int, params Params) *tree {
	g := newGrower(X, y, sample, params)
	g.grow(0, len(sample), 0)
	return &tree{Nodes: g.nodes}
}

// grow appends the subtree for segment [lo, hi) and returns its root position
func (g *grower) grow(lo, hi, depth int) int {
	pos := len(g.nodes)
	g.nodes = append(g.nodes, node{Leaf: true, Value: g.mean(lo, hi)})

	if hi-lo < 2*g.params.MinSamplesLeaf || (g.params.MaxDepth > 0 && depth >= g.params.MaxDepth) {
		return pos
	}
	if g.constantTarget(lo, hi) {
		return pos
	}

	feature, threshold, ok := g.bestSplit(lo, hi)
	if !ok {
		return pos
	}

	mid := g.partition(lo, hi, feature, threshold)
	l := g.grow(lo, mid, depth+1)
	r := g.grow(mid, hi, depth+1)
	g.nodes[pos] = node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return pos
}

// partition stably moves the rows going left to the front of every
// feature's segment and returns the boundary.
func (g *grower) partition(lo, hi, feature int, threshold float64) int {
	mid := lo
	for f := range g.sorted {
		seg := g.sorted[f][lo:hi]
		l, r := 0, 0
		for _, i := range seg {
			if g.X[i][feature] <= threshold {
				seg[l] = i
				l++
			} else {
				g.scratch[r] = i
				r++
			}
		}
		copy(seg[l:], g.scratch[:r])
		mid = lo + l
	}
	return mid
}

// bestSplit finds the split with the lowest summed squared error. Ties
// keep the first candidate in feature then threshold order.
func (g *grower) bestSplit(lo, hi int) (int, float64, bool) {
	n := hi - lo
	minLeaf := g.params.MinSamplesLeaf

	var total float64
	for _, i := range g.sorted[0][lo:hi] {
		total += g.y[i]
	}
	// Minimizing SSE is equivalent to maximizing sumL²/nL + sumR²/nR
	bestScore := total * total / float64(n)
	bestFeature, bestThreshold, found := -1, 0.0, false

	for f := range g.sorted {
		order := g.sorted[f][lo:hi]
		var sumLeft float64
		for k := 1; k < n; k++ {
			sumLeft += g.y[order[k-1]]
			a, b := g.X[order[k-1]][f], g.X[order[k]][f]
			if k < minLeaf || n-k < minLeaf || a == b {
				continue
			}
			sumRight := total - sumLeft
			score := sumLeft*sumLeft/float64(k) + sumRight*sumRight/float64(n-k)
			if score > bestScore+1e-9*math.Abs(bestScore) {
				bestScore = score
				bestFeature = f
				bestThreshold = midpoint(a, b)
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func midpoint(lo, hi float64) float64 {
	m := lo + (hi-lo)/2
	if m >= hi {
		return lo
	}
	return m
}

func (g *grower) mean(lo, hi int) float64 {
	if hi <= lo {
		return 0
	}
	var sum float64
	for _, i := range g.sorted[0][lo:hi] {
		sum += g.y[i]
	}
	return sum / float64(hi-lo)
}

func (g *grower) constantTarget(lo, hi int) bool {
	seg := g.sorted[0][lo:hi]
	first := g.y[seg[0]]
	for _, i := range seg[1:] {
		if g.y[i] != first {
			return false
		}
	}
	return true
}
