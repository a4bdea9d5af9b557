package classifier

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Estimator is a supervised probabilistic classifier. PredictProba returns one row per
// input row and NumClasses columns in class index order.
type Estimator interface {
	Fit(x mat.Matrix, y []int) error
	PredictProba(x mat.Matrix) (*mat.Dense, error)
}

// Default forest configuration constants.
const (
	DefaultTrees          = 100
	DefaultSeed     int64 = 42
	DefaultMinSplit       = 2
	DefaultMaxDepth       = 0 // unlimited
)

// ForestOption applies a configuration option to the RandomForest.
type ForestOption func(*RandomForest)

// WithTrees sets the ensemble size.
func WithTrees(n int) ForestOption {
	return func(f *RandomForest) {
		if n > 0 {
			f.NumTrees = n
		}
	}
}

// WithSeed sets the master seed from which every tree seed is drawn.
func WithSeed(seed int64) ForestOption {
	return func(f *RandomForest) {
		f.Seed = seed
	}
}

// WithMaxDepth limits tree depth. Zero means unlimited.
func WithMaxDepth(depth int) ForestOption {
	return func(f *RandomForest) {
		if depth >= 0 {
			f.MaxDepth = depth
		}
	}
}

// WithMinSplit sets the minimum number of rows a node needs to be split.
func WithMinSplit(n int) ForestOption {
	return func(f *RandomForest) {
		if n >= 2 {
			f.MinSplit = n
		}
	}
}

// WithParallelism bounds the number of trees grown at once.
func WithParallelism(n int) ForestOption {
	return func(f *RandomForest) {
		if n > 0 {
			f.parallelism = n
		}
	}
}

// RandomForest is a bagged ensemble of CART trees using Gini impurity. Each tree is
// grown on a bootstrap resample with sqrt(features) candidates per split. The forest
// probability is the mean of the per-tree leaf class frequencies.
//
// Fitting is deterministic for a given seed regardless of parallelism.
type RandomForest struct {
	NumTrees    int     `json:"num_trees"`
	Seed        int64   `json:"seed"`
	MaxDepth    int     `json:"max_depth"`
	MinSplit    int     `json:"min_split"`
	NumFeatures int     `json:"num_features"`
	Trees       []*Tree `json:"trees"`

	parallelism int
}

// NewRandomForest creates an unfitted forest with configuration options.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	f := &RandomForest{
		NumTrees:    DefaultTrees,
		Seed:        DefaultSeed,
		MaxDepth:    DefaultMaxDepth,
		MinSplit:    DefaultMinSplit,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit grows the ensemble. y holds class indices in [0, NumClasses).
func (f *RandomForest) Fit(x mat.Matrix, y []int) error {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 || rows != len(y) {
		return fmt.Errorf("fit forest on %dx%d with %d labels: %w", rows, cols, len(y), ErrShapeMismatch)
	}
	for _, c := range y {
		if c < 0 || c >= NumClasses {
			return fmt.Errorf("class index %d: %w", c, ErrUnknownLabel)
		}
	}

	data := make([][]float64, rows)
	for i := range data {
		data[i] = mat.Row(nil, i, x)
	}
	maxFeatures := int(math.Sqrt(float64(cols)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	master := rand.New(rand.NewSource(f.Seed)) //nolint:gosec // reproducible bagging
	seeds := make([]int64, f.NumTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*Tree, f.NumTrees)
	var g errgroup.Group
	g.SetLimit(f.workers())
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i])) //nolint:gosec // reproducible bagging
			sample := make([]int, rows)
			for j := range sample {
				sample[j] = rng.Intn(rows)
			}
			b := &treeBuilder{
				x:           data,
				y:           y,
				rng:         rng,
				maxFeatures: maxFeatures,
				maxDepth:    f.MaxDepth,
				minSplit:    f.MinSplit,
			}
			b.grow(sample, 0)
			trees[i] = &Tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.NumFeatures = cols
	f.Trees = trees
	return nil
}

// PredictProba averages leaf frequencies over every tree.
func (f *RandomForest) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest: %w", ErrNotFitted)
	}
	rows, cols := x.Dims()
	if rows == 0 || cols != f.NumFeatures {
		return nil, fmt.Errorf("forest expects %d columns, got %dx%d: %w", f.NumFeatures, rows, cols, ErrShapeMismatch)
	}

	out := mat.NewDense(rows, NumClasses, nil)
	row := make([]float64, cols)
	sum := make([]float64, NumClasses)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		for c := range sum {
			sum[c] = 0
		}
		for _, t := range f.Trees {
			floats.Add(sum, t.predict(row))
		}
		floats.Scale(1/float64(len(f.Trees)), sum)
		out.SetRow(i, sum)
	}
	return out, nil
}

func (f *RandomForest) workers() int {
	if f.parallelism > 0 {
		return f.parallelism
	}
	return runtime.GOMAXPROCS(0)
}
