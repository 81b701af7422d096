package ml

import (
	"errors"
	"fmt"
)

// Pipeline chains the scaler and the forest. FeatureNames is the column order
// the pipeline was fitted on; every input must be aligned to it.
type Pipeline struct {
	FeatureNames []string        `json:"feature_names"`
	Steps        []string        `json:"steps"`
	Scaler       *StandardScaler `json:"preprocessor"`
	Forest       *RandomForest   `json:"classifier"`
}

func NewPipeline(featureNames []string, params ForestParams) *Pipeline {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return &Pipeline{
		FeatureNames: names,
		Steps:        []string{"preprocessor", "classifier"},
		Scaler:       &StandardScaler{},
		Forest:       NewRandomForest(params),
	}
}

func (p *Pipeline) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	if len(features[0]) != len(p.FeatureNames) {
		return fmt.Errorf("%w: rows have %d values, pipeline expects %d", ErrFeatureMismatch, len(features[0]), len(p.FeatureNames))
	}
	if err := p.Scaler.Fit(features); err != nil {
		return fmt.Errorf("fit scaler: %w", err)
	}
	scaled, err := p.Scaler.TransformAll(features)
	if err != nil {
		return err
	}
	if err := p.Forest.Train(scaled, labels); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}
	return nil
}

func (p *Pipeline) PredictProba(features []float64) (float64, error) {
	if p.Forest == nil || p.Scaler == nil || !p.Scaler.Fitted() {
		return 0, ErrNotTrained
	}
	scaled, err := p.Scaler.Transform(features)
	if err != nil {
		return 0, err
	}
	return p.Forest.PredictProba(scaled)
}

func (p *Pipeline) Predict(features []float64) (int, float64, error) {
	prob, err := p.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	if prob > 0.5 {
		return 1, prob, nil
	}
	return 0, prob, nil
}

// PredictRecord aligns a named record to the fitted column order first.
func (p *Pipeline) PredictRecord(record map[string]float64) (int, float64, error) {
	vector, err := Align(record, p.FeatureNames)
	if err != nil {
		return 0, 0, err
	}
	return p.Predict(vector)
}

func (p *Pipeline) Save(path string) error {
	if err := p.validate(); err != nil {
		return err
	}
	return writeJSON(path, p, "")
}

func LoadPipeline(path string) (*Pipeline, error) {
	var p Pipeline
	if err := readJSON(path, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

func (p *Pipeline) validate() error {
	if p.Forest == nil || len(p.Forest.Trees) == 0 {
		return ErrNotTrained
	}
	if p.Scaler == nil || !p.Scaler.Fitted() {
		return errors.New("scaler not fitted")
	}
	if len(p.FeatureNames) == 0 {
		return errors.New("pipeline has no feature names")
	}
	if len(p.Scaler.Mean) != len(p.FeatureNames) {
		return fmt.Errorf("%w: scaler width %d, %d feature names", ErrFeatureMismatch, len(p.Scaler.Mean), len(p.FeatureNames))
	}
	for i, tree := range p.Forest.Trees {
		if tree == nil {
			return fmt.Errorf("%w: tree %d is empty", ErrInvalidTree, i)
		}
		if err := tree.validate(len(p.FeatureNames)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
