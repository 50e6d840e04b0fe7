package middlewares

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Result bool
	Error  []string
}

// Validator checks requests against JSON schemas before they reach a handler.
type Validator struct{}

// JSONSchemaValidator validates data against schema. An error means the schema itself
// could not be used.
func JSONSchemaValidator(schema string, data any) (ValidationResult, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to validate against schema: %w", err)
	}
	errs := []string{}
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return ValidationResult{Result: result.Valid(), Error: errs}, nil
}

// ValidateRequest validates the parts of a request named by schemas: "body" is the JSON
// body, "query" the first value of each query parameter and "params" the chi URL params.
func (v *Validator) ValidateRequest(schemas map[string]string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var details []string
		for part, schema := range schemas {
			data, err := requestPart(r, part)
			if err != nil {
				respond(w, r, http.StatusBadRequest, err.Error(), nil)
				return
			}
			result, err := JSONSchemaValidator(schema, data)
			if err != nil {
				slog.Error("request validation failed", slog.String("part", part), slog.Any("error", err))
				respond(w, r, http.StatusInternalServerError, "encountered an unexpected server error: "+err.Error(), nil)
				return
			}
			if !result.Result {
				details = append(details, result.Error...)
			}
		}
		if len(details) > 0 {
			respond(w, r, http.StatusBadRequest, "request validation failed", details)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestPart(r *http.Request, part string) (any, error) {
	switch part {
	case "body":
		if r.Body == nil {
			return nil, nil
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %v", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("request body is not valid JSON: %v", err)
		}
		return data, nil
	case "query":
		data := map[string]any{}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				data[key] = values[0]
			}
		}
		return data, nil
	case "params":
		data := map[string]any{}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				data[key] = rctx.URLParams.Values[i]
			}
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown request part %q", part)
	}
}
