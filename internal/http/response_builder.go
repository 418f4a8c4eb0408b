// Package http provides the JSON HTTP surface of the service.
//
// This file implements the Builder Pattern for JSON responses: the success
// envelope {success, data, count?, message?} and the error envelope {error}.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"saldo/internal/core"
	applog "saldo/internal/log"
)

const internalErrorMessage = "internal server error"

type successEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	success    *successEnvelope
	failure    *errorEnvelope
}

// NewJSONResponse creates a success response with a 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		success:    &successEnvelope{Success: true},
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	if b.success != nil {
		b.success.Data = data
	}
	return b
}

// Count adds the total number of matching rows.
func (b *JSONResponseBuilder) Count(n int) *JSONResponseBuilder {
	if b.success != nil {
		b.success.Count = &n
	}
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	if b.success != nil {
		b.success.Message = msg
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
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	var body any = b.success
	if b.failure != nil {
		body = b.failure
	}
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"` + internalErrorMessage + `"}`))
		return
	}

	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// OK creates a 200 response carrying data.
func OK(data any) *JSONResponseBuilder {
	return NewJSONResponse().Data(data)
}

// Created creates a 201 response carrying data.
func Created(data any) *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusCreated).Data(data)
}

// ErrorResponse creates an error envelope with the given status.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: statusCode,
		headers:    make(map[string]string),
		failure:    &errorEnvelope{Error: message},
	}
}

// MethodNotAllowedError creates a 405 response listing the allowed methods.
func MethodNotAllowedError(allowed ...string) *JSONResponseBuilder {
	sort.Strings(allowed)
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").
		Header("Allow", strings.Join(allowed, ", "))
}

// TooManyRequestsError creates the 429 response sent by the rate limiter.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// errorStatus maps an error to its HTTP status, the error category used in
// logs and the message shown to the caller.
func errorStatus(err error) (int, string, string) {
	kinds := []struct {
		kind      error
		status    int
		errorType string
	}{
		{core.ErrUnauthenticated, http.StatusUnauthorized, applog.ErrorTypeAuth},
		{core.ErrForbidden, http.StatusForbidden, applog.ErrorTypeForbidden},
		{core.ErrNotFound, http.StatusNotFound, applog.ErrorTypeNotFound},
		{core.ErrValidation, http.StatusBadRequest, applog.ErrorTypeValidation},
		{core.ErrInvalidReference, http.StatusBadRequest, applog.ErrorTypeValidation},
		{core.ErrConflict, http.StatusBadRequest, applog.ErrorTypeConflict},
	}
	for _, k := range kinds {
		if !errors.Is(err, k.kind) {
			continue
		}
		var e *core.Error
		if errors.As(err, &e) {
			return k.status, k.errorType, e.Message
		}
		return k.status, k.errorType, k.kind.Error()
	}
	return http.StatusInternalServerError, applog.ErrorTypeInternal, internalErrorMessage
}

// writeError answers with the error envelope. Unexpected errors are logged
// and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, errorType, message := errorStatus(err)
	logger := applog.FromContext(r.Context())

	if status == http.StatusInternalServerError {
		fields := applog.NewFields().
			WithError(err, errorType).
			WithHTTPRequest(r.Method, r.URL.Path, "", "")
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", "status_code", status, "error", message, "error_type", errorType)
	}

	resp := ErrorResponse(status, message)
	if status == http.StatusUnauthorized {
		resp.Header("WWW-Authenticate", `Bearer realm="saldo"`)
	}
	resp.Write(w)
}
