package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

type ForestParams struct {
	NEstimators     int    `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int    `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features" yaml:"max_features"`
	RandomState     int64  `json:"random_state" yaml:"random_state"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "sqrt",
		RandomState:     42,
	}
}

// ResolveMaxFeatures turns the max_features setting into a column count.
func (p ForestParams) ResolveMaxFeatures(width int) (int, error) {
	if width <= 0 {
		return 0, errors.New("width must be positive")
	}
	var k int
	switch strings.ToLower(strings.TrimSpace(p.MaxFeatures)) {
	case "", "sqrt":
		k = int(math.Sqrt(float64(width)))
	case "log2":
		k = int(math.Log2(float64(width)))
	case "all", "none":
		k = width
	default:
		n, err := strconv.Atoi(p.MaxFeatures)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid max_features %q", p.MaxFeatures)
		}
		k = n
	}
	if k < 1 {
		k = 1
	}
	if k > width {
		k = width
	}
	return k, nil
}

type RandomForest struct {
	Params ForestParams    `json:"params"`
	Trees  []*DecisionTree `json:"trees"`
}

func NewRandomForest(params ForestParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = DefaultForestParams().NEstimators
	}
	return &RandomForest{Params: params}
}

// Train grows NEstimators trees, each on its own bootstrap sample. Every tree
// draws from an RNG seeded off RandomState, so a fixed seed reproduces the forest.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	maxFeatures, err := rf.Params.ResolveMaxFeatures(len(features[0]))
	if err != nil {
		return err
	}

	seeds := rand.New(rand.NewSource(rf.Params.RandomState))
	trees := make([]*DecisionTree, 0, rf.Params.NEstimators)
	n := len(features)
	for t := 0; t < rf.Params.NEstimators; t++ {
		seed := seeds.Int63()
		bootstrap := rand.New(rand.NewSource(seed))
		indices := make([]int, n)
		for i := range indices {
			indices[i] = bootstrap.Intn(n)
		}

		tree := NewDecisionTree(TreeParams{
			MaxDepth:        rf.Params.MaxDepth,
			MinSamplesSplit: rf.Params.MinSamplesSplit,
			MinSamplesLeaf:  rf.Params.MinSamplesLeaf,
			MaxFeatures:     maxFeatures,
			Seed:            seed,
		})
		if err := tree.trainIndices(features, labels, indices); err != nil {
			return fmt.Errorf("tree %d: %w", t, err)
		}
		trees = append(trees, tree)
	}
	rf.Trees = trees
	return nil
}

// PredictProba averages the positive-class probability over all trees.
func (rf *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(rf.Trees) == 0 {
		return 0, ErrNotTrained
	}
	sum := 0.0
	for i, tree := range rf.Trees {
		prob, err := tree.PredictProba(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += prob
	}
	return sum / float64(len(rf.Trees)), nil
}

func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	prob, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	if prob > 0.5 {
		return 1, prob, nil
	}
	return 0, prob, nil
}
