package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres each column on its training mean and divides by the
// population standard deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("features have no columns")
	}

	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)
	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		for i, row := range features {
			if len(row) != width {
				return fmt.Errorf("%w: row %d has %d values, want %d", ErrFeatureMismatch, i, len(row), width)
			}
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		s.Mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return nil
}

func (s *StandardScaler) Fitted() bool {
	return len(s.Mean) > 0 && len(s.Mean) == len(s.Scale)
}

func (s *StandardScaler) Transform(vector []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, errors.New("scaler not fitted")
	}
	if len(vector) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrFeatureMismatch, len(vector), len(s.Mean))
	}
	out := make([]float64, len(vector))
	for i, value := range vector {
		out[i] = (value - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

func (s *StandardScaler) TransformAll(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, row := range features {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}
