package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
)

type bodyKey struct{}

// Middleware decodes and validates JSON request bodies before they reach a
// handler.
type Middleware struct {
	maxBytes int64
}

// NewMiddleware creates a middleware that reads at most maxBytes of body.
// Zero means 1 MiB.
func NewMiddleware(maxBytes int64) *Middleware {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &Middleware{maxBytes: maxBytes}
}

// ValidateJSON decodes the body into a new value of structType's type,
// validates it and stores a pointer to it in the request context. Handlers
// fetch it with Body.
func (m *Middleware) ValidateJSON(structType interface{}) func(http.Handler) http.Handler {
	return m.decode(structType, true)
}

// DecodeJSON is ValidateJSON without the validation step, for handlers that
// validate the payload themselves and pick their own status codes.
func (m *Middleware) DecodeJSON(structType interface{}) func(http.Handler) http.Handler {
	return m.decode(structType, false)
}

func (m *Middleware) decode(structType interface{}, validate bool) func(http.Handler) http.Handler {
	typ := reflect.TypeOf(structType)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			val := reflect.New(typ).Interface()

			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, m.maxBytes))
			if err := dec.Decode(val); err != nil {
				WriteErrors(w, http.StatusBadRequest, ValidationErrors{{
					Field:   "request_body",
					Message: fmt.Sprintf("invalid JSON: %v", err),
				}})
				return
			}

			if validate {
				if err := ValidateStruct(val); err != nil {
					if ve, ok := err.(ValidationErrors); ok {
						WriteErrors(w, http.StatusBadRequest, ve)
						return
					}
					WriteErrors(w, http.StatusBadRequest, ValidationErrors{{
						Field:   "request_body",
						Message: err.Error(),
					}})
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyKey{}, val)))
		})
	}
}

// Body returns the payload stored by ValidateJSON.
func Body[T any](r *http.Request) (*T, bool) {
	v, ok := r.Context().Value(bodyKey{}).(*T)
	return v, ok
}

// WriteErrors writes errs as a JSON response with the given status.
func WriteErrors(w http.ResponseWriter, statusCode int, errs ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	data, err := MarshalValidationErrors(errs)
	if err != nil {
		w.Write([]byte(`{"error":"validation failed","message":"internal validation error"}`))
		return
	}
	w.Write(data)
}
