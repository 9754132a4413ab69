// Package middleware provides HTTP middleware and the JSON error envelope for the API.
package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteErrorWithDetails(w, status, errCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// ErrorRecovery returns middleware that turns a panic into a 500 JSON error.
func ErrorRecovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Common error codes
const (
	ErrNotFound           = "not_found"
	ErrBadRequest         = "bad_request"
	ErrConflict           = "conflict"
	ErrInternalError      = "internal_error"
	ErrValidation         = "validation_error"
	ErrUnauthorized       = "unauthorized"
	ErrNoSources          = "no_sources"
	ErrNoEligibleWorkers  = "no_eligible_workers"
	ErrServiceUnavailable = "service_unavailable"
)
