package ml

import (
	"fmt"
	"math"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

const (
	MediumRiskThreshold = 0.30
	HighRiskThreshold   = 0.70
)

// ClassifyRisk buckets a positive-class probability: [0, 0.3) low,
// [0.3, 0.7) medium, [0.7, 1] high.
func ClassifyRisk(prob float64) (RiskLevel, error) {
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return "", fmt.Errorf("probability %v outside [0,1]", prob)
	}
	switch {
	case prob < MediumRiskThreshold:
		return RiskLow, nil
	case prob < HighRiskThreshold:
		return RiskMedium, nil
	default:
		return RiskHigh, nil
	}
}

func (r RiskLevel) Title() string {
	return string(r) + " Risk"
}

func (r RiskLevel) Icon() string {
	switch r {
	case RiskLow:
		return "💚"
	case RiskMedium:
		return "💛"
	default:
		return "❤️"
	}
}

// CSSClass matches the result card styles in the form templates.
func (r RiskLevel) CSSClass() string {
	switch r {
	case RiskLow:
		return "low-risk"
	case RiskMedium:
		return "medium-risk"
	default:
		return "high-risk"
	}
}

// Confidence is "High" when prob sits more than 0.3 away from the decision boundary.
func Confidence(prob float64) string {
	if math.Abs(prob-0.5) > 0.3 {
		return "High"
	}
	return "Medium"
}
