package http

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"heartrisk/ml"
	"heartrisk/predict"
	"heartrisk/report"
)

//go:embed templates/*.html static/*
var assets embed.FS

func parsePages() (*template.Template, error) {
	funcs := template.FuncMap{
		"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
		"width":   func(v float64) string { return fmt.Sprintf("%.1f", v*100) },
	}
	pages, err := template.New("pages").Funcs(funcs).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return pages, nil
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type formField struct {
	ml.FeatureSpec
	Value float64
}

type inputRow struct {
	Label string
	Value string
}

type resultView struct {
	*predict.Result
	Inputs          []inputRow
	Title           string
	Icon            string
	CSSClass        string
	Gauge           template.HTML
	Radar           template.HTML
	Comparison      template.HTML
	Recommendations []report.Recommendation
	Disclaimer      string
}

type page struct {
	Left        []formField
	Right       []formField
	Error       string
	ModelLoaded bool
	Metrics     *ml.Metrics
	Features    int
	Result      *resultView
}

func (a *API) newPage(record map[string]float64) *page {
	specs := ml.FeatureSpecs()
	fields := make([]formField, len(specs))
	for i, spec := range specs {
		value, ok := record[spec.Name]
		if !ok {
			value = spec.Default
		}
		fields[i] = formField{FeatureSpec: spec, Value: value}
	}
	half := (len(fields) + 1) / 2

	p := &page{Left: fields[:half], Right: fields[half:], Features: len(specs)}
	if model := a.service.Registry().Current(); model != nil {
		p.ModelLoaded = true
		if model.Metadata != nil {
			p.Metrics = &model.Metadata.PerformanceMetrics
		}
	} else {
		p.Error = "Model file not found! Train the model with `heartrisk train` and reload."
	}
	return p
}

func (a *API) render(w http.ResponseWriter, status int, p *page) {
	var buf strings.Builder
	if err := a.pages.ExecuteTemplate(&buf, "index", p); err != nil {
		a.logger.Error("render page failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, buf.String())
}

func (a *API) handleForm(w http.ResponseWriter, r *http.Request) {
	a.render(w, http.StatusOK, a.newPage(ml.DefaultRecord()))
}

// parseForm reads every feature from the posted form. Unparseable values are
// reported by field name.
func parseForm(r *http.Request) (map[string]float64, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	record := make(map[string]float64)
	var fields []predict.FieldError
	for _, spec := range ml.FeatureSpecs() {
		raw := strings.TrimSpace(r.PostForm.Get(spec.Name))
		if raw == "" {
			fields = append(fields, predict.FieldError{Field: spec.Name, Message: "is required"})
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields = append(fields, predict.FieldError{Field: spec.Name, Message: "must be a number"})
			continue
		}
		record[spec.Name] = value
	}
	if len(fields) > 0 {
		return record, &predict.ValidationError{Fields: fields}
	}
	return record, nil
}

func (a *API) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	record, err := parseForm(r)
	p := a.newPage(record)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			p.Error = "Request too large."
			a.render(w, http.StatusRequestEntityTooLarge, p)
			return
		}
		p.Error = "Prediction error: " + err.Error()
		a.render(w, http.StatusBadRequest, p)
		return
	}

	result, err := a.service.Predict(r.Context(), record)
	if err != nil {
		status, _ := predictionError(err)
		if status == http.StatusInternalServerError {
			a.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
			p.Error = "Prediction error: prediction failed"
		} else if errors.Is(err, predict.ErrModelNotLoaded) {
			p.Error = "Model file not found! Train the model with `heartrisk train` and reload."
		} else {
			p.Error = "Prediction error: " + err.Error()
		}
		a.render(w, status, p)
		return
	}

	p.Result = a.buildResult(result)
	a.render(w, http.StatusOK, p)
}

func (a *API) buildResult(result *predict.Result) *resultView {
	view := &resultView{
		Result:          result,
		Title:           result.RiskLevel.Title(),
		Icon:            result.RiskLevel.Icon(),
		CSSClass:        result.RiskLevel.CSSClass(),
		Gauge:           report.Gauge(result.Probability),
		Recommendations: report.Recommendations(result.Prediction),
		Disclaimer:      report.Disclaimer,
	}
	for _, spec := range ml.FeatureSpecs() {
		value, ok := result.Input[spec.Name]
		if !ok {
			continue
		}
		view.Inputs = append(view.Inputs, inputRow{Label: spec.Label, Value: ml.OptionLabel(spec, value)})
	}
	if radar, err := report.Radar(result.Input); err == nil {
		view.Radar = radar
	} else {
		a.logger.Warn("radar chart skipped", zap.Error(err))
	}
	if a.ageGroups != nil {
		view.Comparison = report.AgeComparison(a.ageGroups, result.Input["age"])
	}
	return view
}
