// Package http provides the JSON API server and its handlers.
//
// This file implements a builder for the API response envelope:
// {"success": true, ...} on success and
// {"success": false, "error": msg, "details": [...]} on failure.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
)

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	fields     map[string]any
	headers    map[string]string
}

// NewJSONResponse creates a successful response with status 200.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		fields:     map[string]any{"success": true},
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Field sets one top-level envelope member.
func (b *JSONResponseBuilder) Field(key string, value any) *JSONResponseBuilder {
	b.fields[key] = value
	return b
}

// Message sets the human readable message member.
func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	return b.Field("message", msg)
}

// Merge lifts the JSON members of v into the envelope. v must encode as a
// JSON object.
func (b *JSONResponseBuilder) Merge(v any) *JSONResponseBuilder {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Error("Response merge failed", "error", err)
		return b
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		slog.Error("Response merge needs an object", "error", err)
		return b
	}
	for k, m := range members {
		if k == "success" {
			continue
		}
		b.fields[k] = m
	}
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	body, err := json.Marshal(b.fields)
	if err != nil {
		slog.Error("Response encoding failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse creates a failure envelope. details is omitted when nil.
func ErrorResponse(statusCode int, message string, details any) *JSONResponseBuilder {
	b := NewJSONResponse().
		Status(statusCode).
		Field("success", false).
		Field("error", message)
	if details != nil {
		b.Field("details", details)
	}
	return b
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message, nil)
}

func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message, nil).
		Header("WWW-Authenticate", `Bearer realm="ledger"`)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message, nil)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error", nil)
}

// ErrorFromDomain maps service errors onto status codes. Unknown errors
// become a 500 without leaking their text.
func ErrorFromDomain(err error) *JSONResponseBuilder {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return ErrorResponse(http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.Is(err, core.ErrValidation):
		return ErrorResponse(http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError("not found")
	case errors.Is(err, core.ErrConflict):
		return ErrorResponse(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, auth.ErrMissingCredential), errors.Is(err, auth.ErrInvalidCredential):
		return UnauthorizedError(err.Error())
	default:
		return InternalServerError()
	}
}
