package classifier

import (
	"math"
	"math/rand"
	"sort"
)

// leaf marks a terminal node in Node.Feature.
const leaf = -1

// Node is one node of a flattened decision tree. Internal nodes route rows with
// x[Feature] <= Threshold to Left and the rest to Right. Leaves carry class frequencies.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Proba     []float64 `json:"p,omitempty"`
}

// Tree is a CART classification tree stored as a node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// predict returns the leaf class frequencies for row.
func (t *Tree) predict(row []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature == leaf {
			return n.Proba
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder grows one tree over a fixed training matrix.
type treeBuilder struct {
	x           [][]float64
	y           []int
	rng         *rand.Rand
	maxFeatures int
	maxDepth    int
	minSplit    int
	nodes       []Node
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

// grow builds the subtree over the rows in idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	counts := b.classCounts(idx)
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf})

	if b.pure(counts) || len(idx) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) {
		b.nodes[self].Proba = frequencies(counts, len(idx))
		return self
	}

	best, ok := b.bestSplit(idx, gini(counts, len(idx)))
	if !ok {
		b.nodes[self].Proba = frequencies(counts, len(idx))
		return self
	}

	var left, right []int
	for _, r := range idx {
		if b.x[r][best.feature] <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = Node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
	return self
}

// bestSplit searches a random feature subset first. When none of those features can
// separate the rows, the remaining features are tried before giving up.
func (b *treeBuilder) bestSplit(idx []int, parent float64) (split, bool) {
	order := b.rng.Perm(len(b.x[0]))
	best := split{impurity: parent}
	found := false

	for i, f := range order {
		if i >= b.maxFeatures && found {
			break
		}
		if s, ok := b.scan(idx, f); ok && s.impurity < best.impurity {
			best, found = s, true
		}
	}
	return best, found
}

// scan finds the lowest weighted Gini threshold on one feature.
func (b *treeBuilder) scan(idx []int, f int) (split, bool) {
	sorted := make([]int, len(idx))
	copy(sorted, idx)
	sort.SliceStable(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

	total := b.classCounts(sorted)
	var left [NumClasses]int
	n := len(sorted)
	best := split{feature: f, impurity: math.Inf(1)}
	found := false

	for i := 0; i < n-1; i++ {
		left[b.y[sorted[i]]]++
		lo, hi := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
		if lo == hi {
			continue
		}
		var right [NumClasses]int
		for c := range right {
			right[c] = total[c] - left[c]
		}
		nl, nr := i+1, n-i-1
		imp := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
		if imp < best.impurity {
			threshold := lo + (hi-lo)/2
			if threshold >= hi {
				threshold = lo
			}
			best.impurity, best.threshold, found = imp, threshold, true
		}
	}
	return best, found
}

func (b *treeBuilder) classCounts(idx []int) [NumClasses]int {
	var counts [NumClasses]int
	for _, r := range idx {
		counts[b.y[r]]++
	}
	return counts
}

func (b *treeBuilder) pure(counts [NumClasses]int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func gini(counts [NumClasses]int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func frequencies(counts [NumClasses]int, n int) []float64 {
	out := make([]float64, NumClasses)
	if n == 0 {
		return out
	}
	for c, k := range counts {
		out[c] = float64(k) / float64(n)
	}
	return out
}
