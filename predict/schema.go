package predict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"heartrisk/ml"
)

// FieldError is one rejected input property.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// InputSchema builds the JSON schema of a prediction request from the
// feature table.
func InputSchema() map[string]interface{} {
	properties := make(map[string]interface{})
	required := make([]string, 0)
	for _, spec := range ml.FeatureSpecs() {
		property := map[string]interface{}{
			"type":        "number",
			"description": spec.Help,
			"minimum":     spec.Min,
			"maximum":     spec.Max,
		}
		if spec.Kind == ml.KindSelect {
			values := make([]interface{}, len(spec.Options))
			for i, option := range spec.Options {
				values[i] = option.Value
			}
			property["enum"] = values
		}
		properties[spec.Name] = property
		required = append(required, spec.Name)
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

type validator struct {
	schema *gojsonschema.Schema
}

func newValidator() (*validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(InputSchema()))
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return &validator{schema: schema}, nil
}

func (v *validator) validate(document interface{}) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return &ValidationError{Fields: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}
	fields := make([]FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		field := re.Field()
		if property, ok := re.Details()["property"].(string); ok && field == "(root)" {
			field = property
		}
		fields = append(fields, FieldError{Field: field, Message: re.Description()})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return &ValidationError{Fields: fields}
}

func (v *validator) decode(document map[string]interface{}) (map[string]float64, error) {
	if err := v.validate(document); err != nil {
		return nil, err
	}
	record := make(map[string]float64, len(document))
	for name, value := range document {
		switch n := value.(type) {
		case float64:
			record[name] = n
		case int:
			record[name] = float64(n)
		default:
			return nil, &ValidationError{Fields: []FieldError{{Field: name, Message: "must be a number"}}}
		}
	}
	return record, nil
}
