package predict

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"heartrisk/db"
	"heartrisk/ml"
)

func writeTestModel(t *testing.T, dir string, seed int64) (string, string) {
	t.Helper()
	ds := ml.SyntheticDataset(200, seed)
	params := ml.DefaultForestParams()
	params.NEstimators = 8
	params.MaxDepth = 5
	params.RandomState = seed

	pipeline := ml.NewPipeline(ds.Columns, params)
	require.NoError(t, pipeline.Fit(ds.Features, ds.Labels))
	metrics, err := ml.Evaluate(pipeline, ds.Features, ds.Labels)
	require.NoError(t, err)

	modelPath := filepath.Join(dir, "heart_disease_pipeline.json")
	metaPath := filepath.Join(dir, "model_metadata.json")
	require.NoError(t, pipeline.Save(modelPath))
	require.NoError(t, ml.NewMetadata(pipeline, ds, metrics, time.Now()).Save(metaPath))
	return modelPath, metaPath
}

func newTestService(t *testing.T, cacheSize int) *Service {
	t.Helper()
	modelPath, metaPath := writeTestModel(t, t.TempDir(), 7)
	registry := NewRegistry(modelPath, metaPath, zaptest.NewLogger(t))
	require.NoError(t, registry.Reload())
	svc, err := NewService(registry, cacheSize, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func sampleRecord() map[string]float64 {
	return map[string]float64{
		"age": 45, "sex": 1, "chest_pain_type": 3, "resting_bp_s": 130,
		"cholesterol": 250, "fasting_blood_sugar": 0, "resting_ecg": 0,
		"max_heart_rate": 150, "exercise_angina": 0, "oldpeak": 2.3, "st_slope": 0,
	}
}

func TestPredictWithoutModel(t *testing.T) {
	registry := NewRegistry(filepath.Join(t.TempDir(), "missing.json"), "", nil)
	svc, err := NewService(registry, 4, nil)
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	assert.Error(t, registry.Reload())
	assert.Nil(t, registry.Current())
}

func TestPredictResult(t *testing.T) {
	svc := newTestService(t, 16)

	result, err := svc.Predict(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.GreaterOrEqual(t, result.Probability, 0.0)
	assert.LessOrEqual(t, result.Probability, 1.0)

	risk, err := ml.ClassifyRisk(result.Probability)
	require.NoError(t, err)
	assert.Equal(t, risk, result.RiskLevel)
	assert.Equal(t, ml.Confidence(result.Probability), result.Confidence)
	assert.Equal(t, result.Probability > 0.5, result.Prediction == 1)
	assert.Equal(t, ml.ModelVersion, result.ModelVersion)
	assert.False(t, result.Cached)
	assert.Len(t, result.Input, len(ml.FeatureNames()))
}

func TestPredictCachesAndPurgesOnReload(t *testing.T) {
	svc := newTestService(t, 16)
	ctx := context.Background()

	first, err := svc.Predict(ctx, sampleRecord())
	require.NoError(t, err)
	second, err := svc.Predict(ctx, sampleRecord())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Probability, second.Probability)
	assert.NotEqual(t, first.ID, second.ID)

	require.NoError(t, svc.Registry().Reload())
	third, err := svc.Predict(ctx, sampleRecord())
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, first.Probability, third.Probability)
}

func TestPredictIgnoresEntriesFromReplacedModel(t *testing.T) {
	svc := newTestService(t, 16)
	ctx := context.Background()

	old := svc.Registry().Current()
	first, err := svc.Predict(ctx, sampleRecord())
	require.NoError(t, err)

	vector, err := ml.Align(sampleRecord(), old.Pipeline.FeatureNames)
	require.NoError(t, err)
	key := cacheKey(vector)

	require.NoError(t, svc.Registry().Reload())
	// A scorer that started before the reload finishes after the purge.
	svc.cache.Add(key, score{model: old, prediction: 1 - first.Prediction, probability: 0.99})

	next, err := svc.Predict(ctx, sampleRecord())
	require.NoError(t, err)
	assert.False(t, next.Cached)
	assert.Equal(t, first.Probability, next.Probability)

	again, err := svc.Predict(ctx, sampleRecord())
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestPredictValidation(t *testing.T) {
	svc := newTestService(t, 0)

	cases := map[string]struct {
		mutate func(map[string]float64)
		field  string
	}{
		"missing feature": {func(r map[string]float64) { delete(r, "cholesterol") }, "cholesterol"},
		"below minimum":   {func(r map[string]float64) { r["age"] = 5 }, "age"},
		"not an option":   {func(r map[string]float64) { r["chest_pain_type"] = 1.5 }, "chest_pain_type"},
		"extra property":  {func(r map[string]float64) { r["weight"] = 80 }, "weight"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			record := sampleRecord()
			tc.mutate(record)
			_, err := svc.Predict(context.Background(), record)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			fields := make([]string, len(verr.Fields))
			for i, f := range verr.Fields {
				fields[i] = f.Field
			}
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestDecode(t *testing.T) {
	svc := newTestService(t, 0)

	document := make(map[string]interface{})
	for name, value := range sampleRecord() {
		document[name] = value
	}
	record, err := svc.Decode(document)
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), record)

	document["age"] = "forty"
	_, err = svc.Decode(document)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPredictRecordsHistory(t *testing.T) {
	require.NoError(t, db.InitDB(filepath.Join(t.TempDir(), "history.db")))
	t.Cleanup(func() { _ = db.Close() })

	svc := newTestService(t, 0)
	result, err := svc.Predict(context.Background(), sampleRecord())
	require.NoError(t, err)

	records, err := db.QueryPredictions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.ID, records[0].ID)
	assert.Equal(t, string(result.RiskLevel), records[0].RiskLevel)
}

func TestRegistryWatchReloads(t *testing.T) {
	dir := t.TempDir()
	modelPath, metaPath := writeTestModel(t, dir, 1)
	registry := NewRegistry(modelPath, metaPath, zaptest.NewLogger(t))
	require.NoError(t, registry.Reload())
	loadedAt := registry.Current().LoadedAt

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- registry.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	writeTestModel(t, dir, 2)

	require.Eventually(t, func() bool {
		return registry.Current().LoadedAt.After(loadedAt)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRegistryToleratesMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	modelPath, metaPath := writeTestModel(t, dir, 3)
	require.NoError(t, os.Remove(metaPath))

	registry := NewRegistry(modelPath, metaPath, nil)
	require.NoError(t, registry.Reload())
	assert.Nil(t, registry.Current().Metadata)
	assert.Equal(t, ml.ModelVersion, registry.Current().Version())
}

func TestInputSchemaListsEveryFeature(t *testing.T) {
	schema := InputSchema()
	properties := schema["properties"].(map[string]interface{})
	assert.Len(t, properties, len(ml.FeatureNames()))
	assert.ElementsMatch(t, ml.FeatureNames(), schema["required"])
}
