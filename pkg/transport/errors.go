package transport

import (
	"encoding/json"
	"net/http"
)

// Error types used in the JSON error envelope.
const (
	ErrorTypeInvalidRequest  = "invalid_request"
	ErrorTypeNotFound        = "not_found"
	ErrorTypeTooManyRequests = "too_many_requests"
	ErrorTypeServerError     = "server_error"
)

// ErrorBody is the JSON error envelope: {"error":{"type":..., "message":...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a single error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, typ, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Type: typ, Message: message}})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
