package model

import (
	"context"
	"math/rand/v2"
	"slices"
)

// leaf marks a tree node with no split.
const leaf = -1

// Node is one node of a flattened regression tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a regression tree stored as a node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of regression trees. Its prediction is the
// mean over trees.
type Forest struct {
	Features int    `json:"n_features"`
	Trees    []Tree `json:"trees"`
}

// Predict implements Regressor.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}

// Width implements Regressor.
func (f *Forest) Width() int { return f.Features }

func (f *Forest) valid() bool {
	for _, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return false
		}
		for _, n := range t.Nodes {
			if n.Feature == leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= f.Features ||
				n.Left <= 0 || n.Left >= len(t.Nodes) || n.Right <= 0 || n.Right >= len(t.Nodes) {
				return false
			}
		}
	}
	return len(f.Trees) > 0
}

// fitForest grows nTrees trees, each on a bootstrap sample drawn from its own
// seeded stream. Splits minimize squared error over all features. It also
// returns impurity-based feature importances normalized to sum to 1.
func fitForest(ctx context.Context, x [][]float64, y []float64, nTrees int, seed uint64) (*Forest, []float64, error) {
	if len(x) == 0 {
		return nil, nil, ErrInsufficientData
	}
	p := len(x[0])
	f := &Forest{Features: p, Trees: make([]Tree, 0, nTrees)}
	importances := make([]float64, p)

	for t := 0; t < nTrees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		rng := rand.New(rand.NewPCG(seed, uint64(t)))
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.IntN(len(x))
		}

		b := treeBuilder{x: x, y: y, gain: make([]float64, p)}
		b.grow(sample)
		f.Trees = append(f.Trees, Tree{Nodes: b.nodes})

		if total := sum(b.gain); total > 0 {
			for j, g := range b.gain {
				importances[j] += g / total
			}
		}
	}

	if total := sum(importances); total > 0 {
		for j := range importances {
			importances[j] /= total
		}
	}
	return f, importances, nil
}

type treeBuilder struct {
	x     [][]float64
	y     []float64
	nodes []Node
	gain  []float64
}

// grow appends the subtree for idx and returns its root index.
func (b *treeBuilder) grow(idx []int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: b.meanOf(idx)})

	if len(idx) < 2 {
		return self
	}
	feature, threshold, gain, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.gain[feature] += gain

	l := b.grow(left)
	r := b.grow(right)
	b.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: b.nodes[self].Value}
	return self
}

// bestSplit finds the split with the largest reduction in summed squared
// error. Ties go to the lowest feature index, then the lowest threshold.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, float64, bool) {
	n := float64(len(idx))
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/n
	if parentSSE <= 1e-12 {
		return 0, 0, 0, false
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	order := slices.Clone(idx)
	p := len(b.x[idx[0]])

	for j := 0; j < p; j++ {
		slices.SortStableFunc(order, func(a, c int) int {
			switch va, vc := b.x[a][j], b.x[c][j]; {
			case va < vc:
				return -1
			case va > vc:
				return 1
			}
			return 0
		})

		var leftSum, leftSq float64
		for k := 0; k < len(order)-1; k++ {
			yi := b.y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			cur, next := b.x[order[k]][j], b.x[order[k+1]][j]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := parentSSE - sse
			if gain > bestGain+1e-12 {
				threshold := cur + (next-cur)/2
				if threshold >= next {
					threshold = cur
				}
				bestFeature, bestThreshold, bestGain = j, threshold, gain
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestGain, true
}

func (b *treeBuilder) meanOf(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

func sum(xs []float64) float64 {
	var s float64
	for _, v := range xs {
		s += v
	}
	return s
}
