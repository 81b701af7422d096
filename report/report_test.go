package report

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartrisk/ml"
)

func TestUserAgeGroup(t *testing.T) {
	cases := map[float64]string{
		18: "18-30", 30: "18-30", 31: "31-45", 45: "31-45",
		45.5: "46-60", 60: "46-60", 61: "60+", 100: "60+",
	}
	for age, want := range cases {
		assert.Equal(t, want, UserAgeGroup(age), "age %v", age)
	}
}

func TestNewAgeGroups(t *testing.T) {
	ds := &ml.Dataset{
		Columns:  []string{"age"},
		Features: [][]float64{{25}, {29}, {40}, {50}, {55}, {70}, {120}},
		Labels:   []int{0, 1, 1, 0, 0, 1, 1},
	}
	groups, err := NewAgeGroups(ds)
	require.NoError(t, err)
	require.Len(t, groups, 4)

	assert.Equal(t, AgeGroup{Label: "18-30", Risk: 0.5, HasData: true}, groups[0])
	assert.Equal(t, AgeGroup{Label: "31-45", Risk: 1, HasData: true}, groups[1])
	assert.Equal(t, AgeGroup{Label: "46-60", Risk: 0, HasData: true}, groups[2])
	assert.Equal(t, AgeGroup{Label: "60+", Risk: 1, HasData: true}, groups[3])
}

func TestNewAgeGroupsDropsUnbinnableAges(t *testing.T) {
	ds := &ml.Dataset{
		Columns:  []string{"age"},
		Features: [][]float64{{70}, {math.NaN()}, {0}, {math.Inf(1)}},
		Labels:   []int{0, 1, 1, 1},
	}
	groups, err := NewAgeGroups(ds)
	require.NoError(t, err)

	assert.Equal(t, AgeGroup{Label: "60+", Risk: 0, HasData: true}, groups[3])
	assert.False(t, groups[0].HasData)
}

func TestNewAgeGroupsRequiresAgeColumn(t *testing.T) {
	ds := &ml.Dataset{Columns: []string{"sex"}, Features: [][]float64{{1}}, Labels: []int{1}}
	_, err := NewAgeGroups(ds)
	assert.ErrorIs(t, err, ml.ErrMissingFeature)
}

func TestRecommendationsByClass(t *testing.T) {
	risky := Recommendations(1)
	require.Len(t, risky, 5)
	assert.Equal(t, "Consult a cardiologist", risky[0].Text)

	fine := Recommendations(0)
	require.Len(t, fine, 5)
	assert.Equal(t, "Maintenance", fine[0].Topic)

	risky[0].Text = "changed"
	assert.Equal(t, "Consult a cardiologist", Recommendations(1)[0].Text)
}

func TestRadarValues(t *testing.T) {
	record := ml.DefaultRecord()
	record["age"] = 50
	record["cholesterol"] = 900
	values, err := RadarValues(record)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, values[0], 1e-9)
	assert.Equal(t, 1.0, values[2])

	delete(record, "oldpeak")
	_, err = RadarValues(record)
	assert.ErrorIs(t, err, ml.ErrMissingFeature)
}

func TestChartsRenderSVG(t *testing.T) {
	gauge := string(Gauge(0.82))
	assert.True(t, strings.HasPrefix(gauge, "<svg"))
	assert.Contains(t, gauge, "82.0%")
	assert.Contains(t, gauge, colorHigh)

	radar, err := Radar(ml.DefaultRecord())
	require.NoError(t, err)
	assert.Contains(t, string(radar), "ST Depress")

	groups := AgeGroups{
		{Label: "18-30", Risk: 0.1, HasData: true},
		{Label: "31-45", Risk: 0.3, HasData: true},
		{Label: "46-60", Risk: 0.5, HasData: true},
		{Label: "60+", Risk: 0.7, HasData: true},
	}
	comparison := string(AgeComparison(groups, 52))
	assert.Equal(t, 4, strings.Count(comparison, "<rect"))
	assert.Equal(t, 1, strings.Count(comparison, `class="you"`))
}
