package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/ml"
	"heartrisk/predict"
	"heartrisk/report"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// API holds what the handlers share. AgeGroups may be nil when the training
// CSV is unavailable; the comparison chart is then left out.
type API struct {
	service   *predict.Service
	ageGroups report.AgeGroups
	logger    *zap.Logger
	pages     *template.Template
	upgrader  websocket.Upgrader
}

func NewAPI(service *predict.Service, ageGroups report.AgeGroups, logger *zap.Logger) (*API, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &API{
		service:   service,
		ageGroups: ageGroups,
		logger:    logger,
		pages:     pages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleForm)
	mux.HandleFunc("POST /predict", a.handleFormPredict)
	mux.Handle("GET /static/", staticHandler())

	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("GET /api/training", a.handleTrainingLog)
	mux.HandleFunc("GET /ws/predict", a.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model_loaded": a.service.Registry().Current() != nil,
	})
}

// predictionError maps a prediction failure to a status code and body.
func predictionError(err error) (int, interface{}) {
	var verr *predict.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, map[string]interface{}{"error": "invalid input", "fields": verr.Fields}
	case errors.Is(err, predict.ErrModelNotLoaded):
		return http.StatusServiceUnavailable, map[string]string{"error": "model not loaded, train the model first"}
	case errors.Is(err, ml.ErrMissingFeature), errors.Is(err, ml.ErrFeatureMismatch):
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	default:
		return http.StatusInternalServerError, map[string]string{"error": "prediction failed"}
	}
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var document map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&document); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	record, err := a.service.Decode(document)
	if err == nil {
		var result *predict.Result
		result, err = a.service.Predict(r.Context(), record)
		if err == nil {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	status, body := predictionError(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	model := a.service.Registry().Current()
	if model == nil {
		writeError(w, http.StatusServiceUnavailable, "model not loaded, train the model first")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":       model.Version(),
		"loaded_at":     model.LoadedAt,
		"feature_names": model.Pipeline.FeatureNames,
		"metadata":      model.Metadata,
		"input_schema":  predict.InputSchema(),
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := db.QueryPredictions(r.Context(), limit)
	if err != nil {
		if errors.Is(err, db.ErrNotInitialized) {
			writeError(w, http.StatusServiceUnavailable, "prediction history unavailable")
			return
		}
		a.logger.Error("query history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(records),
		"predictions": records,
	})
}

func (a *API) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	runs, err := db.LoadTrainingLog(r.Context())
	if err != nil {
		if errors.Is(err, db.ErrNotInitialized) {
			writeError(w, http.StatusServiceUnavailable, "training log unavailable")
			return
		}
		a.logger.Error("load training log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load training log failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}
