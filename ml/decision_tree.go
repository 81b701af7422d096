package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

var (
	ErrNotTrained  = errors.New("model not trained")
	ErrInvalidTree = errors.New("invalid tree")
)

type DecisionTree struct {
	Params TreeParams `json:"params"`
	Nodes  []TreeNode `json:"nodes"`

	rnd *rand.Rand
}

// TreeParams mirrors the usual CART knobs. MaxDepth <= 0 grows until pure,
// MaxFeatures <= 0 evaluates every column at every node.
type TreeParams struct {
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"`
	Seed            int64 `json:"seed"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Prob       float64 `json:"prob"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(params TreeParams) *DecisionTree {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	return &DecisionTree{Params: params}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	return dt.trainIndices(features, labels, indices)
}

// trainIndices fits on the rows named by indices. Repeated indices act as
// sample weights, which is how bootstrap samples reach the tree.
func (dt *DecisionTree) trainIndices(features [][]float64, labels []int, indices []int) error {
	width := len(features[0])
	for _, idx := range indices {
		if len(features[idx]) != width {
			return fmt.Errorf("%w: row %d", ErrFeatureMismatch, idx)
		}
		if labels[idx] != 0 && labels[idx] != 1 {
			return fmt.Errorf("label %d at row %d is not binary", labels[idx], idx)
		}
	}
	if dt.Params.MinSamplesSplit < 2 {
		dt.Params.MinSamplesSplit = 2
	}
	if dt.Params.MinSamplesLeaf < 1 {
		dt.Params.MinSamplesLeaf = 1
	}
	dt.rnd = rand.New(rand.NewSource(dt.Params.Seed))
	dt.Nodes = nil
	dt.buildNode(features, labels, indices, 0)
	return nil
}

// Predict returns the majority label and the positive-class probability.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	prob, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	if prob > 0.5 {
		return 1, prob, nil
	}
	return 0, prob, nil
}

func (dt *DecisionTree) PredictProba(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, ErrNotTrained
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Prob, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left, right := walk(node.LeftChild), walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

func leafNode(positives, total int) TreeNode {
	prob := 0.0
	if total > 0 {
		prob = float64(positives) / float64(total)
	}
	label := 0
	if prob > 0.5 {
		label = 1
	}
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		Prob:       prob,
		Samples:    total,
		IsLeaf:     true,
	}
}

// buildNode appends the subtree for indices in pre-order (node, left subtree,
// right subtree) and returns the node's index. Child indices are absolute.
func (dt *DecisionTree) buildNode(features [][]float64, labels []int, indices []int, depth int) int {
	positives := countPositives(labels, indices)
	leaf := leafNode(positives, len(indices))
	self := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, leaf)
	if (dt.Params.MaxDepth > 0 && depth >= dt.Params.MaxDepth) ||
		len(indices) < dt.Params.MinSamplesSplit ||
		positives == 0 || positives == len(indices) {
		return self
	}

	bestFeature, threshold, ok := dt.findBestSplit(features, labels, indices)
	if !ok {
		return self
	}
	leftIdx, rightIdx := splitIndices(features, indices, bestFeature, threshold)
	if len(leftIdx) == 0 || len(rightIdx) == 0 {
		return self
	}

	left := dt.buildNode(features, labels, leftIdx, depth+1)
	right := dt.buildNode(features, labels, rightIdx, depth+1)

	node := &dt.Nodes[self]
	node.IsLeaf = false
	node.FeatureIdx = bestFeature
	node.Threshold = threshold
	node.LeftChild = left
	node.RightChild = right
	return self
}

// validate checks the node table of a loaded tree: every internal node must
// point forward to nodes inside the table and split on a column below width.
// Pre-order layout makes any cycle a backward pointer, so this rules cycles out.
func (dt *DecisionTree) validate(width int) error {
	if len(dt.Nodes) == 0 {
		return ErrNotTrained
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if node.Prob < 0 || node.Prob > 1 || math.IsNaN(node.Prob) {
				return fmt.Errorf("%w: node %d probability %v", ErrInvalidTree, i, node.Prob)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= width {
			return fmt.Errorf("%w: node %d splits on column %d of %d", ErrInvalidTree, i, node.FeatureIdx, width)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.Nodes) {
				return fmt.Errorf("%w: node %d points to %d", ErrInvalidTree, i, child)
			}
		}
	}
	return nil
}

func (dt *DecisionTree) candidateFeatures(width int) []int {
	k := dt.Params.MaxFeatures
	if k <= 0 || k >= width {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return dt.rnd.Perm(width)[:k]
}

func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, indices []int) (int, float64, bool) {
	width := len(features[indices[0]])
	minLeaf := dt.Params.MinSamplesLeaf
	total := len(indices)
	totalPos := countPositives(labels, indices)

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, total)
	for _, featureIdx := range dt.candidateFeatures(width) {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})

		leftPos := 0
		for i := 0; i < total-1; i++ {
			leftPos += labels[sorted[i]]
			current := features[sorted[i]][featureIdx]
			next := features[sorted[i+1]][featureIdx]
			if current == next {
				continue
			}
			leftN := i + 1
			rightN := total - leftN
			if leftN < minLeaf || rightN < minLeaf {
				continue
			}
			impurity := weightedGini(leftPos, leftN, totalPos-leftPos, rightN)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = current + (next-current)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitIndices(features [][]float64, indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if features[idx][featureIdx] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

func countPositives(labels []int, indices []int) int {
	count := 0
	for _, idx := range indices {
		count += labels[idx]
	}
	return count
}

func weightedGini(leftPos, leftN, rightPos, rightN int) float64 {
	total := float64(leftN + rightN)
	return (float64(leftN)/total)*gini(leftPos, leftN) + (float64(rightN)/total)*gini(rightPos, rightN)
}

func gini(positives, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(positives) / float64(total)
	return 1 - p*p - (1-p)*(1-p)
}
