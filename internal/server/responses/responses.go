// Package responses defines the wire types and helpers shared by all HTTP
// handlers, including the machine-readable error body.
package responses

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Error codes used by the API surface.
const (
	CodeTimeout      = "TIMEOUT_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeValidation   = "VALIDATION_ERROR"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

// ErrorDetail is one element of an error's details list.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorBody is the uniform error envelope: {"error": {code, message, ...}}.
type ErrorBody struct {
	Error struct {
		Code    string        `json:"code"`
		Message string        `json:"message"`
		Target  string        `json:"target,omitempty"`
		Details []ErrorDetail `json:"details,omitempty"`
	} `json:"error"`
}

// WebhookAccepted acknowledges a scheduled update.
type WebhookAccepted struct {
	Status      string     `json:"status"` // "accepted" or "ignored"
	Message     string     `json:"message,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteError writes the uniform error envelope.
func WriteError(w http.ResponseWriter, status int, code, message, target string) {
	var body ErrorBody
	body.Error.Code = code
	body.Error.Message = message
	body.Error.Target = target
	WriteJSON(w, status, body)
}
