package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response. A nil payload with 204 writes no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil && b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error")
}

// ValidationErrorResponse creates a 422 response naming the rejected field.
func ValidationErrorResponse(err error) *JSONResponseBuilder {
	body := errorBody{Error: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body = errorBody{Error: ve.Err.Error(), Field: ve.Field}
	}
	return NewJSONResponse().Status(http.StatusUnprocessableEntity).Data(body)
}

// writeJSON writes v with status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	NewJSONResponse().Status(code).Data(v).Write(w)
}

// writeError maps domain and storage errors to status codes. Unexpected
// errors are logged and answered with a generic 500.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		BadRequestError(err.Error()).Write(w)
	case core.IsValidation(err):
		ValidationErrorResponse(err).Write(w)
	case errors.Is(err, currency.ErrUnknownCurrency):
		ValidationErrorResponse(core.Invalid("currency", err)).Write(w)
	case errors.Is(err, storage.ErrNotFound):
		NotFoundError("not found").Write(w)
	case errors.Is(err, export.ErrUnsupportedFormat):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, export.ErrNoTransactions):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, storage.ErrNotInitialized):
		log.FromContext(ctx).ErrorContext(ctx, "Store not initialized", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.FromContext(ctx).WarnContext(ctx, "Request cancelled", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "request cancelled").Write(w)
	default:
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", log.FieldError, err)
		InternalServerError().Write(w)
	}
}
