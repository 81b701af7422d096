package predict

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

type Result struct {
	ID           string             `json:"id"`
	Prediction   int                `json:"prediction"`
	Probability  float64            `json:"probability"`
	RiskLevel    ml.RiskLevel       `json:"risk_level"`
	Confidence   string             `json:"confidence"`
	ModelVersion string             `json:"model_version"`
	Input        map[string]float64 `json:"input"`
	Cached       bool               `json:"cached"`
	CreatedAt    time.Time          `json:"created_at"`
}

// score is a memoised prediction. model records which snapshot produced it so
// an entry added while a reload was in flight is never served afterwards.
type score struct {
	model       *Model
	prediction  int
	probability float64
	risk        ml.RiskLevel
	confidence  string
}

type Service struct {
	registry  *Registry
	validator *validator
	cache     *lru.Cache[string, score]
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires a Service to registry. cacheSize 0 disables memoisation.
func NewService(registry *Registry, cacheSize int, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	s := &Service{
		registry:  registry,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, score](cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
		registry.OnReload(func(*Model) { cache.Purge() })
	}
	return s, nil
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Decode validates a decoded JSON object against the input schema and
// returns it as a feature record.
func (s *Service) Decode(document map[string]interface{}) (map[string]float64, error) {
	return s.validator.decode(document)
}

// Validate checks a feature record against the input schema.
func (s *Service) Validate(record map[string]float64) error {
	document := make(map[string]interface{}, len(record))
	for name, value := range record {
		document[name] = value
	}
	return s.validator.validate(document)
}

// Predict scores one record with the current model and records it in the
// prediction history.
func (s *Service) Predict(ctx context.Context, record map[string]float64) (*Result, error) {
	model := s.registry.Current()
	if model == nil {
		return nil, ErrModelNotLoaded
	}
	if err := s.Validate(record); err != nil {
		return nil, err
	}
	vector, err := ml.Align(record, model.Pipeline.FeatureNames)
	if err != nil {
		return nil, err
	}

	key := cacheKey(vector)
	sc, cached := s.lookup(key, model)
	if cached {
		monitoring.PredictionCacheHits.Inc()
	} else {
		start := time.Now()
		sc, err = scoreVector(model, vector)
		monitoring.PredictionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Add(key, sc)
		}
	}

	input := make(map[string]float64, len(model.Pipeline.FeatureNames))
	for i, name := range model.Pipeline.FeatureNames {
		input[name] = vector[i]
	}
	result := &Result{
		ID:           uuid.NewString(),
		Prediction:   sc.prediction,
		Probability:  sc.probability,
		RiskLevel:    sc.risk,
		Confidence:   sc.confidence,
		ModelVersion: model.Version(),
		Input:        input,
		Cached:       cached,
		CreatedAt:    s.now().UTC(),
	}
	monitoring.PredictionsTotal.WithLabelValues(string(result.RiskLevel)).Inc()
	s.record(ctx, result)

	s.logger.Debug("prediction",
		zap.String("id", result.ID),
		zap.Float64("probability", result.Probability),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Bool("cached", cached))
	return result, nil
}

func (s *Service) lookup(key string, model *Model) (score, bool) {
	if s.cache == nil {
		return score{}, false
	}
	sc, ok := s.cache.Get(key)
	if !ok || sc.model != model {
		return score{}, false
	}
	return sc, true
}

func (s *Service) record(ctx context.Context, result *Result) {
	if !db.Initialized() {
		return
	}
	err := db.SavePrediction(ctx, db.PredictionRecord{
		ID:           result.ID,
		Features:     result.Input,
		Prediction:   result.Prediction,
		Probability:  result.Probability,
		RiskLevel:    string(result.RiskLevel),
		Confidence:   result.Confidence,
		ModelVersion: result.ModelVersion,
		CreatedAt:    result.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("save prediction failed", zap.String("id", result.ID), zap.Error(err))
	}
}

func scoreVector(model *Model, vector []float64) (score, error) {
	label, prob, err := model.Pipeline.Predict(vector)
	if err != nil {
		return score{}, err
	}
	risk, err := ml.ClassifyRisk(prob)
	if err != nil {
		return score{}, err
	}
	return score{
		model:       model,
		prediction:  label,
		probability: prob,
		risk:        risk,
		confidence:  ml.Confidence(prob),
	}, nil
}

func cacheKey(vector []float64) string {
	var b strings.Builder
	for i, value := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
	}
	return b.String()
}
