package ml

import (
	"errors"
	"strconv"
	"time"
)

const (
	ModelName    = "Heart Disease Classifier"
	ModelType    = "Random Forest Pipeline"
	ModelVersion = "1.0"
	DataSource   = "UCI Heart Disease Dataset"
)

type DatasetInfo struct {
	Source             string         `json:"source"`
	FeaturesCount      int            `json:"features_count"`
	SamplesCount       int            `json:"samples_count"`
	TargetDistribution map[string]int `json:"target_distribution"`
}

type Metadata struct {
	ModelName          string       `json:"model_name"`
	ModelType          string       `json:"model_type"`
	Version            string       `json:"version"`
	CreatedDate        time.Time    `json:"created_date"`
	DatasetInfo        DatasetInfo  `json:"dataset_info"`
	Hyperparameters    ForestParams `json:"hyperparameters"`
	PerformanceMetrics Metrics      `json:"performance_metrics"`
	FeatureNames       []string     `json:"feature_names"`
	PreprocessingSteps []string     `json:"preprocessing_steps"`
	PipelineSteps      []string     `json:"pipeline_steps"`
}

func NewMetadata(p *Pipeline, ds *Dataset, metrics Metrics, createdAt time.Time) *Metadata {
	distribution := make(map[string]int)
	for label, count := range ds.ClassCounts() {
		distribution[strconv.Itoa(label)] = count
	}
	return &Metadata{
		ModelName:   ModelName,
		ModelType:   ModelType,
		Version:     ModelVersion,
		CreatedDate: createdAt,
		DatasetInfo: DatasetInfo{
			Source:             DataSource,
			FeaturesCount:      len(ds.Columns),
			SamplesCount:       ds.Len(),
			TargetDistribution: distribution,
		},
		Hyperparameters:    p.Forest.Params,
		PerformanceMetrics: metrics,
		FeatureNames:       append([]string(nil), p.FeatureNames...),
		PreprocessingSteps: []string{"StandardScaler"},
		PipelineSteps:      append([]string(nil), p.Steps...),
	}
}

func (m *Metadata) Save(path string) error {
	return writeJSON(path, m, "    ")
}

func LoadMetadata(path string) (*Metadata, error) {
	var m Metadata
	if err := readJSON(path, &m); err != nil {
		return nil, err
	}
	if len(m.FeatureNames) == 0 {
		return nil, errors.New("metadata has no feature_names")
	}
	return &m, nil
}
