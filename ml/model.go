package ml

// Classifier scores one aligned, unscaled feature vector.
type Classifier interface {
	PredictProba(features []float64) (float64, error)
}
