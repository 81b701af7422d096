// Package training fits the heart disease pipeline from the selected-feature
// CSV and exports it together with its metadata.
package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/ml"
	"heartrisk/monitoring"
	"heartrisk/pipeline"
)

var ErrDataNotFound = errors.New("training data not found, run feature selection first")

type Options struct {
	DataPath     string
	Encoding     string
	ModelDir     string
	ModelFile    string
	MetadataFile string
	Params       ml.ForestParams
	TestRatio    float64

	// StrictCleaning drops rows with any quality issue, not just invalid ones.
	StrictCleaning bool

	Logger *zap.Logger
	Now    func() time.Time
}

type Result struct {
	ModelPath        string
	MetadataPath     string
	TrainSize        int
	TestSize         int
	Quality          pipeline.CleaningStats
	Metrics          ml.Metrics
	Metadata         *ml.Metadata
	SmokePrediction  int
	SmokeProbability float64
}

// SmokeSample is the record scored after export to prove the saved pipeline loads.
func SmokeSample() map[string]float64 {
	return map[string]float64{
		"age":                 45,
		"sex":                 1,
		"chest_pain_type":     3,
		"resting_bp_s":        130,
		"cholesterol":         250,
		"fasting_blood_sugar": 0,
		"resting_ecg":         0,
		"max_heart_rate":      150,
		"exercise_angina":     0,
		"oldpeak":             2.3,
		"st_slope":            0,
	}
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ModelFile == "" {
		o.ModelFile = "heart_disease_pipeline.json"
	}
	if o.MetadataFile == "" {
		o.MetadataFile = "model_metadata.json"
	}
	if o.TestRatio == 0 {
		o.TestRatio = 0.2
	}
	if o.Params.NEstimators == 0 {
		o.Params = ml.DefaultForestParams()
	}
}

// Run trains, evaluates, exports and smoke-tests a pipeline.
func Run(ctx context.Context, opts Options) (res *Result, err error) {
	opts.applyDefaults()
	logger := opts.Logger
	defer func() { monitoring.TrainingRuns.WithLabelValues(monitoring.Outcome(err)).Inc() }()

	logger.Info("loading training data", zap.String("path", opts.DataPath))
	raw, err := ml.LoadCSV(opts.DataPath, opts.Encoding)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDataNotFound, opts.DataPath)
		}
		return nil, fmt.Errorf("load training data: %w", err)
	}

	cleaner := pipeline.NewDataCleaner()
	if opts.StrictCleaning {
		cleaner.RejectAt = pipeline.SeverityLow
	}
	ds, stats, issues := cleaner.Clean(raw)
	logger.Info("data quality",
		zap.Int("rows", stats.TotalProcessed),
		zap.Int("rejected", stats.Rejected),
		zap.Int("flagged", stats.Flagged),
		zap.Any("issues", stats.Issues))
	for _, issue := range issues[:min(len(issues), 10)] {
		logger.Debug("quality issue",
			zap.String("rule", issue.Rule),
			zap.Stringer("severity", issue.Severity),
			zap.Int("line", issue.Line),
			zap.String("message", issue.Message))
	}
	if ds.Len() == 0 {
		return nil, errors.New("no training rows left after cleaning")
	}
	counts := ds.ClassCounts()
	logger.Info("training data loaded",
		zap.Int("samples", ds.Len()),
		zap.Int("features", len(ds.Columns)),
		zap.Int("negative", counts[0]),
		zap.Int("positive", counts[1]))

	train, test, err := ml.StratifiedSplit(ds, opts.TestRatio, opts.Params.RandomState)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	logger.Info("split dataset", zap.Int("train", train.Len()), zap.Int("test", test.Len()))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model := ml.NewPipeline(ds.Columns, opts.Params)
	start := time.Now()
	if err := model.Fit(train.Features, train.Labels); err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}
	logger.Info("pipeline fitted",
		zap.Int("trees", len(model.Forest.Trees)),
		zap.Duration("elapsed", time.Since(start)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics, err := ml.Evaluate(model, test.Features, test.Labels)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	logger.Info("evaluation",
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("recall", metrics.Recall),
		zap.Float64("f1_score", metrics.F1Score),
		zap.Float64("auc", metrics.AUC))

	if err := os.MkdirAll(opts.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	modelPath := filepath.Join(opts.ModelDir, opts.ModelFile)
	metadataPath := filepath.Join(opts.ModelDir, opts.MetadataFile)
	if err := model.Save(modelPath); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	metadata := ml.NewMetadata(model, ds, metrics, opts.Now().UTC())
	if err := metadata.Save(metadataPath); err != nil {
		return nil, fmt.Errorf("save metadata: %w", err)
	}
	logger.Info("model exported", zap.String("model", modelPath), zap.String("metadata", metadataPath))

	reloaded, err := ml.LoadPipeline(modelPath)
	if err != nil {
		return nil, fmt.Errorf("reload exported pipeline: %w", err)
	}
	label, prob, err := reloaded.PredictRecord(SmokeSample())
	if err != nil {
		return nil, fmt.Errorf("smoke prediction: %w", err)
	}
	logger.Info("smoke prediction", zap.Int("prediction", label), zap.Float64("probability", prob))

	if db.Initialized() {
		entry := db.TrainingLog{
			ModelName:  metadata.ModelName,
			Version:    metadata.Version,
			Accuracy:   metrics.Accuracy,
			Precision:  metrics.Precision,
			Recall:     metrics.Recall,
			F1Score:    metrics.F1Score,
			AUC:        metrics.AUC,
			DataPoints: ds.Len(),
			TrainedAt:  metadata.CreatedDate,
		}
		if err := db.SaveTrainingLog(ctx, entry); err != nil {
			logger.Warn("save training log failed", zap.Error(err))
		}
	}

	return &Result{
		ModelPath:        modelPath,
		MetadataPath:     metadataPath,
		TrainSize:        train.Len(),
		TestSize:         test.Len(),
		Quality:          stats,
		Metrics:          metrics,
		Metadata:         metadata,
		SmokePrediction:  label,
		SmokeProbability: prob,
	}, nil
}
