// Package httpx holds the JSON response helpers and request plumbing shared by the portal gate
// and the HTTP API.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"sitegate.io/internal/ids"
	"sitegate.io/internal/obs"
)

const (
	// HeaderRequestID carries the correlation id in both directions.
	HeaderRequestID = "X-Request-ID"

	maxJSONBody = 1 << 20
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg, "request_id": ...}.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	body := map[string]any{"error": msg}
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	WriteJSON(w, status, body)
}

// WriteInternalError hides err from the client and returns the correlation id instead. The full
// error goes to the server log only.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	rid := obs.RequestIDFromContext(r.Context())
	if rid == "" {
		rid = ids.New()
	}
	obs.From(r.Context()).Error("request failed",
		obs.RequestID(rid),
		obs.Path(r.URL.Path),
		obs.Method(r.Method),
		zap.Error(err),
	)
	WriteJSON(w, http.StatusInternalServerError, map[string]any{
		"error":          "internal error",
		"correlation_id": rid,
	})
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed request bodies or parameters.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// WriteValidation writes a 400 with the field list.
func WriteValidation(w http.ResponseWriter, r *http.Request, verr *ValidationError) {
	body := map[string]any{
		"error":  "validation failed",
		"fields": verr.Fields,
	}
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	WriteJSON(w, http.StatusBadRequest, body)
}

// DecodeJSON reads a bounded JSON body into v and rejects unknown fields and trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return &ValidationError{Fields: []FieldError{{Field: "body", Message: "request body is required"}}}
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &ValidationError{Fields: []FieldError{{Field: "body", Message: "request body is required"}}}
		}
		return &ValidationError{Fields: []FieldError{{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	if dec.More() {
		return &ValidationError{Fields: []FieldError{{Field: "body", Message: "unexpected trailing data"}}}
	}
	return nil
}

// RequestID propagates or assigns X-Request-ID and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if rid == "" || len(rid) > 128 {
			rid = ids.New()
		}
		w.Header().Set(HeaderRequestID, rid)
		next.ServeHTTP(w, r.WithContext(obs.WithRequestID(r.Context(), rid)))
	})
}
