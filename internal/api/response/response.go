// Package response writes the JSON envelopes every endpoint uses:
// {"data": ...} on success, {"error": {"code", "message"}} on failure.
package response

import (
	"encoding/json"
	"net/http"
)

// Error codes shared across handlers. Codes are stable API surface;
// messages are not.
const (
	CodeValidationError = "validation_error"
	CodeNotFound        = "not_found"
	CodeRateLimited     = "rate_limited"
	CodeProviderError   = "provider_error"
	CodeInternalError   = "internal_error"
)

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Accepted is used for async submissions that hand back a job id.
func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
