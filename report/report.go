// Package report builds the explanatory parts of a result page: charts,
// age-group comparison and recommendations.
package report

import (
	"fmt"

	"heartrisk/ml"
)

const Disclaimer = "This tool is for educational purposes only. Always consult a healthcare professional for medical advice."

type Recommendation struct {
	Topic string
	Text  string
}

var (
	atRisk = []Recommendation{
		{"Immediate Action", "Consult a cardiologist"},
		{"Lifestyle", "Adopt a heart-healthy diet"},
		{"Exercise", "Start with light activity"},
		{"Monitoring", "Regular BP checks"},
		{"Medication", "Follow prescribed treatments"},
	}
	healthy = []Recommendation{
		{"Maintenance", "Continue healthy lifestyle"},
		{"Prevention", "Regular checkups"},
		{"Exercise", "Maintain activity"},
		{"Diet", "Balanced nutrition"},
		{"Monitoring", "Annual assessments"},
	}
)

// Recommendations depend only on the predicted class.
func Recommendations(prediction int) []Recommendation {
	src := healthy
	if prediction == 1 {
		src = atRisk
	}
	out := make([]Recommendation, len(src))
	copy(out, src)
	return out
}

var AgeGroupLabels = []string{"18-30", "31-45", "46-60", "60+"}

// UserAgeGroup places a user's age; ages above 60 all land in "60+".
func UserAgeGroup(age float64) string {
	switch {
	case age <= 30:
		return "18-30"
	case age <= 45:
		return "31-45"
	case age <= 60:
		return "46-60"
	default:
		return "60+"
	}
}

// datasetAgeGroup uses right-closed bins over (0, 100]; rows outside are dropped.
func datasetAgeGroup(age float64) string {
	if !(age > 0 && age <= 100) {
		return ""
	}
	return UserAgeGroup(age)
}

type AgeGroup struct {
	Label   string
	Risk    float64
	HasData bool
}

// AgeGroups is the mean target per age group of a training dataset, in
// AgeGroupLabels order.
type AgeGroups []AgeGroup

func NewAgeGroups(ds *ml.Dataset) (AgeGroups, error) {
	means, err := ml.MeanTargetBy(ds, "age", datasetAgeGroup)
	if err != nil {
		return nil, fmt.Errorf("age groups: %w", err)
	}
	groups := make(AgeGroups, len(AgeGroupLabels))
	for i, label := range AgeGroupLabels {
		risk, ok := means[label]
		groups[i] = AgeGroup{Label: label, Risk: risk, HasData: ok}
	}
	return groups, nil
}

// LoadAgeGroups reads the training CSV and aggregates it.
func LoadAgeGroups(path, encoding string) (AgeGroups, error) {
	ds, err := ml.LoadCSV(path, encoding)
	if err != nil {
		return nil, err
	}
	return NewAgeGroups(ds)
}

// RadarFeatures are the vitals on the profile chart, with the value that maps to 1.
var RadarFeatures = []struct {
	Name  string
	Label string
	Max   float64
}{
	{"age", "Age", 100},
	{"resting_bp_s", "BP", 200},
	{"cholesterol", "Chol", 600},
	{"max_heart_rate", "Max HR", 202},
	{"oldpeak", "ST Depress", 6.2},
}

// RadarValues normalises the radar vitals of record into [0,1].
func RadarValues(record map[string]float64) ([]float64, error) {
	values := make([]float64, len(RadarFeatures))
	maxs := make([]float64, len(RadarFeatures))
	for i, f := range RadarFeatures {
		v, ok := record[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ml.ErrMissingFeature, f.Name)
		}
		values[i] = v
		maxs[i] = f.Max
	}
	return ml.NormalizeVector(values, maxs)
}
