// Package pipeline audits training rows before they reach the model.
package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"heartrisk/ml"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityHigh
)

func (s Severity) String() string {
	if s == SeverityHigh {
		return "high"
	}
	return "low"
}

// QualityIssue points at one row of the audited dataset. Line is the CSV line
// number, counting the header as line 1.
type QualityIssue struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Row      int      `json:"row"`
	Line     int      `json:"line"`
	Message  string   `json:"message"`
}

type CleaningRule interface {
	Name() string
	Check(columns []string, row []float64) (Severity, string, bool)
}

type CleaningStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Flagged        int            `json:"flagged"`
	Issues         map[string]int `json:"issues"`
}

// DataCleaner runs every rule over every row. Rows with an issue at or above
// RejectAt are dropped; the rest are kept and only reported.
type DataCleaner struct {
	rules    []CleaningRule
	RejectAt Severity
}

func NewDataCleaner() *DataCleaner {
	cleaner := &DataCleaner{RejectAt: SeverityHigh}
	cleaner.AddRule(FiniteValueRule{})
	cleaner.AddRule(NewRangeRule(ml.FeatureSpecs()))
	cleaner.AddRule(NewDuplicateDetectionRule())
	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean returns the rows that passed, in their original order.
func (dc *DataCleaner) Clean(ds *ml.Dataset) (*ml.Dataset, CleaningStats, []QualityIssue) {
	stats := CleaningStats{Issues: make(map[string]int)}
	var issues []QualityIssue
	cleaned := &ml.Dataset{Columns: ds.Columns}

	for _, rule := range dc.rules {
		if r, ok := rule.(interface{ Reset() }); ok {
			r.Reset()
		}
	}

	for i, row := range ds.Features {
		stats.TotalProcessed++
		worst := Severity(-1)
		for _, rule := range dc.rules {
			severity, message, failed := rule.Check(ds.Columns, row)
			if !failed {
				continue
			}
			issues = append(issues, QualityIssue{
				Rule:     rule.Name(),
				Severity: severity,
				Row:      i,
				Line:     i + 2,
				Message:  message,
			})
			stats.Issues[rule.Name()]++
			if severity > worst {
				worst = severity
			}
		}

		switch {
		case worst >= dc.RejectAt:
			stats.Rejected++
			continue
		case worst >= SeverityLow:
			stats.Flagged++
		}
		stats.Passed++
		cleaned.Features = append(cleaned.Features, row)
		cleaned.Labels = append(cleaned.Labels, ds.Labels[i])
	}
	return cleaned, stats, issues
}

// FiniteValueRule rejects NaN and infinite values, which strconv accepts.
type FiniteValueRule struct{}

func (FiniteValueRule) Name() string {
	return "finite_value"
}

func (FiniteValueRule) Check(columns []string, row []float64) (Severity, string, bool) {
	for i, value := range row {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return SeverityHigh, fmt.Sprintf("%s is %v", columns[i], value), true
		}
	}
	return 0, "", false
}

// RangeRule flags values outside the input range accepted by the form. The
// public dataset records unknown cholesterol as 0, so this is low severity.
type RangeRule struct {
	bounds map[string][2]float64
}

func NewRangeRule(specs []ml.FeatureSpec) *RangeRule {
	bounds := make(map[string][2]float64, len(specs))
	for _, spec := range specs {
		bounds[spec.Name] = [2]float64{spec.Min, spec.Max}
	}
	return &RangeRule{bounds: bounds}
}

func (r *RangeRule) Name() string {
	return "range_validation"
}

func (r *RangeRule) Check(columns []string, row []float64) (Severity, string, bool) {
	var out []string
	for i, value := range row {
		b, ok := r.bounds[columns[i]]
		if !ok {
			continue
		}
		if value < b[0] || value > b[1] {
			out = append(out, fmt.Sprintf("%s=%g outside [%g, %g]", columns[i], value, b[0], b[1]))
		}
	}
	if len(out) == 0 {
		return 0, "", false
	}
	return SeverityLow, strings.Join(out, ", "), true
}

type DuplicateDetectionRule struct {
	seen map[string]struct{}
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{seen: make(map[string]struct{})}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Reset() {
	r.seen = make(map[string]struct{})
}

func (r *DuplicateDetectionRule) Check(columns []string, row []float64) (Severity, string, bool) {
	parts := make([]string, len(row))
	for i, value := range row {
		parts[i] = strconv.FormatFloat(value, 'g', -1, 64)
	}
	key := strings.Join(parts, ",")
	if _, exists := r.seen[key]; exists {
		return SeverityLow, "duplicate feature row", true
	}
	r.seen[key] = struct{}{}
	return 0, "", false
}
