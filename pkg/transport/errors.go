package transport

import (
	"encoding/json"
	"net/http"
)

// Error types carried in the JSON error envelope.
const (
	ErrorTypeUnauthenticated = "unauthenticated"
	ErrorTypeForbidden       = "forbidden"
	ErrorTypeTooManyRequests = "too_many_requests"
	ErrorTypeInvalidRequest  = "invalid_request"
	ErrorTypeServer          = "server_error"
)

// ErrorResponse is the JSON envelope for error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a single error.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{Type: errType, Message: message}})
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
