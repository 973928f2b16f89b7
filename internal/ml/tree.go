package ml

import (
	"sort"
)

type treeNode struct {
	Leaf      bool    `json:"leaf"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value"`
}

// regressionTree is a binary tree stored as a flat node slice; node 0 is
// the root. Samples with x[Feature] <= Threshold go left.
type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth int
	minLeaf  int
}

func (t *regressionTree) leafIndex(x []float64) int {
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

func (t *regressionTree) predict(x []float64) float64 {
	return t.Nodes[t.leafIndex(x)].Value
}

// growTree fits target over the rows in idx by least squares. Leaf values
// are the target means; boosting overwrites them afterwards.
func growTree(X [][]float64, target []float64, idx []int, p treeParams) *regressionTree {
	t := &regressionTree{}
	t.build(X, target, idx, 0, p)
	return t
}

func (t *regressionTree) build(X [][]float64, target []float64, idx []int, depth int, p treeParams) int {
	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Leaf: true, Value: meanAt(target, idx)})

	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return node
	}
	feature, threshold, ok := bestSplit(X, target, idx, p.minLeaf)
	if !ok {
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.build(X, target, left, depth+1, p)
	r := t.build(X, target, right, depth+1, p)
	t.Nodes[node] = treeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return node
}

// bestSplit scans every feature for the threshold with the largest
// reduction in squared error. Ties keep the earliest feature.
func bestSplit(X [][]float64, target []float64, idx []int, minLeaf int) (int, float64, bool) {
	n := len(idx)
	total := 0.0
	for _, i := range idx {
		total += target[i]
	}
	parent := total * total / float64(n)

	bestGain := 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false

	order := make([]int, n)
	for f := 0; f < len(X[idx[0]]); f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		leftSum := 0.0
		for k := 0; k < n-1; k++ {
			leftSum += target[order[k]]
			cur, next := X[order[k]][f], X[order[k+1]][f]
			if cur == next {
				continue
			}
			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func meanAt(v []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	s := 0.0
	for _, i := range idx {
		s += v[i]
	}
	return s / float64(len(idx))
}
