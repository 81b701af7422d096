// Package monitoring exposes the Prometheus collectors shared by the prediction
// service, the training run and the model registry.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartrisk_predictions_total",
			Help: "Total number of predictions served, by risk level",
		},
		[]string{"risk_level"},
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heartrisk_prediction_duration_seconds",
			Help:    "Time spent scoring one record",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	PredictionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartrisk_prediction_cache_hits_total",
			Help: "Predictions answered from the result cache",
		},
	)

	ModelReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartrisk_model_reloads_total",
			Help: "Model reload attempts, by result",
		},
		[]string{"result"},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartrisk_training_runs_total",
			Help: "Training runs, by result",
		},
		[]string{"result"},
	)
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Outcome maps an error to the result label.
func Outcome(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
