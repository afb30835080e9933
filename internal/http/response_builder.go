// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing HTMX and JSON
// responses, and maps service errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"vahan/internal/analytics"
	"vahan/internal/core"
	"vahan/internal/services"
	"vahan/internal/sources"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
// It encapsulates the construction of HX-Trigger headers and response bodies.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerCacheInvalidated tells the dashboard to reload its report partial.
func (b *HTMXResponseBuilder) TriggerCacheInvalidated(entries int) *HTMXResponseBuilder {
	return b.Trigger("cache:invalidated", map[string]int{"entries": entries})
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// TriggerNotification adds a show-notification trigger with the specified parameters.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

func (b *HTMXResponseBuilder) BodyString(content string) *HTMXResponseBuilder {
	b.body = []byte(content)
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// BodyJSON encodes v as the response body. An encoding failure turns the
// response into a 500.
func (b *HTMXResponseBuilder) BodyJSON(v any) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "application/json"
	data, err := json.Marshal(v)
	if err != nil {
		b.statusCode = http.StatusInternalServerError
		b.body = []byte(`{"error":"response encoding failed"}`)
		return b
	}
	b.body = append(data, '\n')
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates a standard error response with HTML formatting.
// The message is HTML-escaped for safety.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	escapedMsg := template.HTMLEscapeString(message)
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error" role="alert">` + escapedMsg + `</div>`)
}

// JSONResponse creates a JSON response with the given status.
func JSONResponse(statusCode int, v any) *HTMXResponseBuilder {
	return NewHTMXResponse().Status(statusCode).BodyJSON(v)
}

type errorBody struct {
	Error   string            `json:"error"`
	Details []ValidationError `json:"details,omitempty"`
}

// JSONError creates a {"error": ...} response.
func JSONError(statusCode int, message string) *HTMXResponseBuilder {
	return JSONResponse(statusCode, errorBody{Error: message})
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowedMethods)
}

// StatusFor maps a service error to an HTTP status. Malformed queries are
// 400, a dataset that fails to parse is 422, a missing or slow source is 503.
func StatusFor(err error) int {
	var ve ValidationErrors
	var pe *core.ParseError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, services.ErrInvalidRange),
		errors.Is(err, core.ErrUnknownDimension),
		errors.Is(err, analytics.ErrNoDimensions),
		errors.Is(err, analytics.ErrDuplicateDimension):
		return http.StatusBadRequest
	case errors.As(err, &pe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sources.ErrNoCandidate),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text safe to show a client. Server-side
// failures are not described beyond their class.
func PublicMessage(err error, status int) string {
	var pe *core.ParseError
	switch {
	case errors.As(err, &pe):
		return pe.Error()
	case status < 500:
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "data source unavailable"
	default:
		return "internal error"
	}
}

// ErrorJSON builds the JSON response for err.
func ErrorJSON(err error) *HTMXResponseBuilder {
	status := StatusFor(err)
	body := errorBody{Error: PublicMessage(err, status)}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		body.Details = ve
	}
	return JSONResponse(status, body)
}

// ErrorHTML builds the HTML fragment response for err.
func ErrorHTML(err error) *HTMXResponseBuilder {
	status := StatusFor(err)
	return ErrorResponse(status, PublicMessage(err, status))
}
