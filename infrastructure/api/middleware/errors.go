// Package middleware provides HTTP middleware and response helpers for the
// API server.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/internal/log"
)

// ErrAuthentication indicates a missing or invalid API key.
var ErrAuthentication = errors.New("authentication failed")

// APIError is an error with an explicit HTTP status.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates an APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// Code returns the HTTP status.
func (e *APIError) Code() int { return e.code }

// Message returns the client-facing message.
func (e *APIError) Message() string { return e.message }

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the cause.
func (e *APIError) Unwrap() error { return e.cause }

// AuthenticationError is returned when a request fails API key checks.
type AuthenticationError struct {
	reason string
}

// NewAuthenticationError creates an AuthenticationError.
func NewAuthenticationError(reason string) *AuthenticationError {
	return &AuthenticationError{reason: reason}
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.reason
}

// Is matches ErrAuthentication.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	ID     string `json:"id,omitempty"`
}

// StatusFor maps an error to its HTTP status by fault kind: validation is
// 400, data consistency 404, transient I/O 502 and everything else 500.
func StatusFor(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.code
	}
	if errors.Is(err, ErrAuthentication) {
		return http.StatusUnauthorized
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return http.StatusBadRequest
	}

	switch fault.Classify(err) {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindDataConsistency:
		return http.StatusNotFound
	case fault.KindTransientIO:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the error envelope for err. Server errors carry a
// generic detail; the full error is only logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	status := StatusFor(err)
	id := log.RequestID(r.Context())

	detail := err.Error()
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.message
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		detail = serverDetail(status)
	} else {
		logger.WarnContext(r.Context(), "request rejected",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{
		Status: status,
		Title:  http.StatusText(status),
		Detail: detail,
		ID:     id,
	}})
}

func serverDetail(status int) string {
	if status == http.StatusBadGateway {
		return "an upstream service is unavailable, retry later"
	}
	return "an internal error occurred"
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
