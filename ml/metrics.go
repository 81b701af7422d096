package ml

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	AUC       float64 `json:"auc"`
}

// Evaluate scores a classifier on held-out rows. Rows must already be in the
// classifier's column order.
func Evaluate(model Classifier, features [][]float64, labels []int) (Metrics, error) {
	if len(features) == 0 {
		return Metrics{}, errors.New("features is empty")
	}
	if len(features) != len(labels) {
		return Metrics{}, errors.New("features and labels size mismatch")
	}
	probs := make([]float64, len(features))
	for i, row := range features {
		prob, err := model.PredictProba(row)
		if err != nil {
			return Metrics{}, err
		}
		probs[i] = prob
	}
	return ScoreProbabilities(probs, labels), nil
}

func ScoreProbabilities(probs []float64, labels []int) Metrics {
	var correct, truePositive, predictedPositive, actualPositive int
	for i, prob := range probs {
		label := 0
		if prob > 0.5 {
			label = 1
		}
		if label == labels[i] {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if labels[i] == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
	}

	var m Metrics
	if len(probs) > 0 {
		m.Accuracy = float64(correct) / float64(len(probs))
	}
	if predictedPositive > 0 {
		m.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		m.Recall = float64(truePositive) / float64(actualPositive)
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.AUC = ROCAUC(probs, labels)
	return m
}

// ROCAUC is the area under the ROC curve, or 0 when only one class is present.
func ROCAUC(probs []float64, labels []int) float64 {
	if len(probs) == 0 || len(probs) != len(labels) {
		return 0
	}
	type scored struct {
		prob  float64
		class bool
	}
	rows := make([]scored, len(probs))
	var positives int
	for i := range probs {
		rows[i] = scored{prob: probs[i], class: labels[i] == 1}
		if rows[i].class {
			positives++
		}
	}
	if positives == 0 || positives == len(rows) {
		return 0
	}
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].prob < rows[b].prob })
	y := make([]float64, len(rows))
	classes := make([]bool, len(rows))
	for i, row := range rows {
		y[i] = row.prob
		classes[i] = row.class
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
