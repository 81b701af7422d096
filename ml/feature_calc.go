package ml

import (
	"errors"
)

// NormalizeFeature maps value into [0,1] relative to max, clamping outliers.
func NormalizeFeature(value, max float64) float64 {
	if max == 0 {
		return 0
	}
	ratio := value / max
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func NormalizeVector(values []float64, maxs []float64) ([]float64, error) {
	if len(values) != len(maxs) {
		return nil, errors.New("values/maxs length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		result[i] = NormalizeFeature(values[i], maxs[i])
	}
	return result, nil
}

// MeanTargetBy groups rows by bucket(value of column) and returns the mean
// target per bucket. Rows whose bucket is "" are skipped.
func MeanTargetBy(ds *Dataset, column string, bucket func(float64) string) (map[string]float64, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, errors.New("dataset is empty")
	}
	values, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, value := range values {
		key := bucket(value)
		if key == "" {
			continue
		}
		sums[key] += float64(ds.Labels[i])
		counts[key]++
	}
	means := make(map[string]float64, len(sums))
	for key, sum := range sums {
		means[key] = sum / float64(counts[key])
	}
	return means, nil
}
