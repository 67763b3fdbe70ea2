package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Meta is attached to every response.
type Meta struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// Error is the structured error body.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope wraps every JSON response.
type Envelope struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
	Meta  Meta   `json:"meta"`
}

func newMeta(requestID string) Meta {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func success(w http.ResponseWriter, status int, data any, requestID string) {
	writeJSON(w, status, Envelope{Data: data, Meta: newMeta(requestID)})
}

func fail(w http.ResponseWriter, status int, code, message, requestID string) {
	failWithDetails(w, status, code, message, nil, requestID)
}

func failWithDetails(w http.ResponseWriter, status int, code, message string, details any, requestID string) {
	writeJSON(w, status, Envelope{
		Error: &Error{Code: code, Message: message, Details: details},
		Meta:  newMeta(requestID),
	})
}
