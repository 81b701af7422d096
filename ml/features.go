package ml

import (
	"errors"
	"fmt"
)

type FieldKind string

const (
	KindSlider FieldKind = "slider"
	KindSelect FieldKind = "select"
)

// Option is one choice of a select field.
type Option struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

type FeatureSpec struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Kind        FieldKind `json:"kind"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Step        float64   `json:"step"`
	Default     float64   `json:"default"`
	Options     []Option  `json:"options,omitempty"`
	Help        string    `json:"help"`
	NormalRange string    `json:"normal_range"`
}

var featureSpecs = []FeatureSpec{
	{Name: "age", Label: "Age (years)", Kind: KindSlider, Min: 18, Max: 100, Step: 1, Default: 50,
		Help: "Your age in years", NormalRange: "Normal: 18-100 years"},
	{Name: "sex", Label: "Biological Sex", Kind: KindSelect, Min: 0, Max: 1, Step: 1, Default: 0,
		Options: []Option{{0, "Female"}, {1, "Male"}},
		Help:    "Biological sex affects risk patterns", NormalRange: "0 = Female, 1 = Male"},
	{Name: "chest_pain_type", Label: "Chest Pain Type", Kind: KindSelect, Min: 0, Max: 3, Step: 1, Default: 0,
		Options: []Option{{0, "Typical Angina"}, {1, "Atypical Angina"}, {2, "Non-Anginal Pain"}, {3, "Asymptomatic"}},
		Help:    "Type of chest pain", NormalRange: "0 = Typical Angina, 1 = Atypical Angina, 2 = Non-Anginal Pain, 3 = Asymptomatic"},
	{Name: "resting_bp_s", Label: "Resting Blood Pressure (mmHg)", Kind: KindSlider, Min: 90, Max: 200, Step: 1, Default: 130,
		Help: "Systolic BP at rest", NormalRange: "Normal: 90-120 mmHg"},
	{Name: "cholesterol", Label: "Cholesterol (mg/dl)", Kind: KindSlider, Min: 100, Max: 600, Step: 1, Default: 200,
		Help: "Serum cholesterol level", NormalRange: "Normal: 125-200 mg/dl"},
	{Name: "fasting_blood_sugar", Label: "Fasting Blood Sugar > 120 mg/dl", Kind: KindSelect, Min: 0, Max: 1, Step: 1, Default: 0,
		Options: []Option{{0, "No"}, {1, "Yes"}},
		Help:    "Is fasting blood sugar above 120 mg/dl?", NormalRange: "0 = No, 1 = Yes (Normal: <=120 mg/dl)"},
	{Name: "resting_ecg", Label: "Resting ECG Results", Kind: KindSelect, Min: 0, Max: 2, Step: 1, Default: 0,
		Options: []Option{{0, "Normal"}, {1, "ST-T Abnormality"}, {2, "LV Hypertrophy"}},
		Help:    "ECG at rest", NormalRange: "0 = Normal, 1 = ST-T Abnormality, 2 = LV Hypertrophy"},
	{Name: "max_heart_rate", Label: "Maximum Heart Rate", Kind: KindSlider, Min: 60, Max: 202, Step: 1, Default: 150,
		Help: "Max HR during exercise", NormalRange: "Normal: 100-190 bpm"},
	{Name: "exercise_angina", Label: "Exercise Induced Angina", Kind: KindSelect, Min: 0, Max: 1, Step: 1, Default: 0,
		Options: []Option{{0, "No"}, {1, "Yes"}},
		Help:    "Chest pain during exercise?", NormalRange: "0 = No, 1 = Yes"},
	{Name: "oldpeak", Label: "ST Depression", Kind: KindSlider, Min: 0, Max: 6.2, Step: 0.1, Default: 0,
		Help: "ST depression by exercise", NormalRange: "Normal: 0.0-2.0"},
	{Name: "st_slope", Label: "Slope of Peak Exercise ST", Kind: KindSelect, Min: 0, Max: 2, Step: 1, Default: 0,
		Options: []Option{{0, "Upsloping"}, {1, "Flat"}, {2, "Downsloping"}},
		Help:    "Slope of peak exercise ST segment", NormalRange: "0 = Upsloping, 1 = Flat, 2 = Downsloping"},
}

const TargetColumn = "target"

var (
	ErrMissingFeature  = errors.New("missing feature")
	ErrFeatureMismatch = errors.New("feature count mismatch")
)

// FeatureSpecs returns the input schema in training column order.
func FeatureSpecs() []FeatureSpec {
	specs := make([]FeatureSpec, len(featureSpecs))
	copy(specs, featureSpecs)
	return specs
}

func FeatureNames() []string {
	names := make([]string, len(featureSpecs))
	for i, spec := range featureSpecs {
		names[i] = spec.Name
	}
	return names
}

// DefaultRecord is the form's initial state.
func DefaultRecord() map[string]float64 {
	record := make(map[string]float64, len(featureSpecs))
	for _, spec := range featureSpecs {
		record[spec.Name] = spec.Default
	}
	return record
}

// Align lays record out in exactly the given column order. The model was fitted
// on positional columns, so any other order silently yields wrong predictions.
func Align(record map[string]float64, order []string) ([]float64, error) {
	if len(order) == 0 {
		return nil, errors.New("feature order is empty")
	}
	vector := make([]float64, len(order))
	for i, name := range order {
		value, ok := record[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		vector[i] = value
	}
	return vector, nil
}

// OptionLabel names a select value; other values print as numbers.
func OptionLabel(spec FeatureSpec, value float64) string {
	for _, option := range spec.Options {
		if option.Value == value {
			return option.Label
		}
	}
	return fmt.Sprintf("%g", value)
}
