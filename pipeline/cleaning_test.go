package pipeline

import (
	"math"
	"testing"

	"heartrisk/ml"
)

func row(overrides map[string]float64) []float64 {
	record := ml.DefaultRecord()
	for k, v := range overrides {
		record[k] = v
	}
	values, _ := ml.Align(record, ml.FeatureNames())
	return values
}

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner()
	if cleaner == nil {
		t.Fatal("NewDataCleaner returned nil")
	}
	if len(cleaner.rules) != 3 {
		t.Errorf("expected 3 default rules, got %d", len(cleaner.rules))
	}
}

func TestRangeRule(t *testing.T) {
	rule := NewRangeRule(ml.FeatureSpecs())
	columns := ml.FeatureNames()

	tests := []struct {
		name     string
		row      []float64
		wantFail bool
	}{
		{name: "defaults", row: row(nil), wantFail: false},
		{name: "zero cholesterol", row: row(map[string]float64{"cholesterol": 0}), wantFail: true},
		{name: "upper bound", row: row(map[string]float64{"oldpeak": 6.2}), wantFail: false},
		{name: "negative oldpeak", row: row(map[string]float64{"oldpeak": -1}), wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, message, failed := rule.Check(columns, tt.row)
			if failed != tt.wantFail {
				t.Fatalf("Check() failed = %v, want %v (%s)", failed, tt.wantFail, message)
			}
			if failed && severity != SeverityLow {
				t.Errorf("severity = %v, want low", severity)
			}
		})
	}
}

func TestFiniteValueRule(t *testing.T) {
	columns := ml.FeatureNames()
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		severity, _, failed := FiniteValueRule{}.Check(columns, row(map[string]float64{"age": bad}))
		if !failed || severity != SeverityHigh {
			t.Errorf("value %v: failed=%v severity=%v", bad, failed, severity)
		}
	}
	if _, _, failed := (FiniteValueRule{}).Check(columns, row(nil)); failed {
		t.Error("finite row flagged")
	}
}

func TestClean(t *testing.T) {
	ds := &ml.Dataset{
		Columns: ml.FeatureNames(),
		Features: [][]float64{
			row(nil),
			row(map[string]float64{"age": math.NaN()}),
			row(nil),
			row(map[string]float64{"cholesterol": 0}),
		},
		Labels: []int{0, 1, 0, 1},
	}

	cleaned, stats, issues := NewDataCleaner().Clean(ds)
	if cleaned.Len() != 3 {
		t.Fatalf("expected 3 rows kept, got %d", cleaned.Len())
	}
	if stats.Rejected != 1 || stats.Flagged != 2 || stats.Passed != 3 || stats.TotalProcessed != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Issues["duplicate_detection"] != 1 {
		t.Errorf("expected one duplicate, got %d", stats.Issues["duplicate_detection"])
	}
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(issues))
	}
	if issues[0].Rule != "finite_value" || issues[0].Line != 3 {
		t.Errorf("unexpected first issue: %+v", issues[0])
	}
	if got := cleaned.Labels; got[0] != 0 || got[1] != 0 || got[2] != 1 {
		t.Errorf("labels out of order: %v", got)
	}
}

func TestCleanStrict(t *testing.T) {
	ds := &ml.Dataset{
		Columns:  ml.FeatureNames(),
		Features: [][]float64{row(nil), row(map[string]float64{"resting_bp_s": 0})},
		Labels:   []int{0, 1},
	}
	cleaner := NewDataCleaner()
	cleaner.RejectAt = SeverityLow

	cleaned, stats, _ := cleaner.Clean(ds)
	if cleaned.Len() != 1 || stats.Rejected != 1 {
		t.Errorf("strict clean kept %d rows, rejected %d", cleaned.Len(), stats.Rejected)
	}

	// Rules are reset between runs, so a second pass sees no duplicates.
	_, stats, _ = cleaner.Clean(ds)
	if stats.Issues["duplicate_detection"] != 0 {
		t.Errorf("duplicate state leaked between runs")
	}
}
