package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents bad input to the gateway (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents a missing resource (404)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeProviderTransient represents timeouts, rate limits and 5xx from a provider
	ErrorTypeProviderTransient ErrorType = "provider_transient"
	// ErrorTypeProviderHard represents provider failures that another attempt will not fix
	ErrorTypeProviderHard ErrorType = "provider_hard"
	// ErrorTypeCircuitOpen represents a provider skipped by its circuit breaker (503)
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	// ErrorTypeQuotaExceeded represents a rejected quota check (402/413)
	ErrorTypeQuotaExceeded ErrorType = "quota_exceeded"
	// ErrorTypeAllProvidersFailed represents an exhausted fallback chain (503)
	ErrorTypeAllProvidersFailed ErrorType = "all_providers_failed"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType   `json:"type"`
	Message    string      `json:"message"`
	Code       string      `json:"code,omitzero"`
	StatusCode int         `json:"-"`
	Retryable  bool        `json:"retryable"`
	Provider   ProviderID  `json:"provider,omitzero"`
	Quota      *SpendCheck `json:"quota,omitempty"`
	LastError  string      `json:"last_error,omitzero"`
	Cause      error       `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is retryable
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeQuotaExceeded:
		return http.StatusPaymentRequired
	case ErrorTypeProviderTransient, ErrorTypeProviderHard:
		return http.StatusBadGateway
	case ErrorTypeCircuitOpen, ErrorTypeAllProvidersFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		Code:       "VALIDATION",
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		StatusCode: http.StatusNotFound,
	}
}

// NewProviderTransientError creates a retryable provider error
func NewProviderTransientError(provider ProviderID, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProviderTransient,
		Message:    fmt.Sprintf("provider %s error: %s", provider, message),
		Code:       "PROVIDER_TRANSIENT",
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
		Cause:      cause,
	}
}

// NewProviderHardError creates a provider error that stops the fallback chain
func NewProviderHardError(provider ProviderID, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProviderHard,
		Message:    fmt.Sprintf("provider %s error: %s", provider, message),
		Code:       "PROVIDER_HARD",
		StatusCode: http.StatusBadGateway,
		Provider:   provider,
		Cause:      cause,
	}
}

// NewCircuitOpenError creates a circuit breaker error
func NewCircuitOpenError(provider ProviderID) *AppError {
	return &AppError{
		Type:       ErrorTypeCircuitOpen,
		Message:    fmt.Sprintf("provider %s is currently unavailable (circuit breaker open)", provider),
		Code:       "CIRCUIT_OPEN",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Provider:   provider,
	}
}

// NewQuotaExceededError creates a quota error carrying the rejected check.
// Per-request rejections map to 413 so clients can ask for a shorter input.
func NewQuotaExceededError(check SpendCheck) *AppError {
	status := http.StatusPaymentRequired
	message := "monthly token limit reached"
	switch check.Reason {
	case QuotaReasonPerRequestTooLarge:
		status = http.StatusRequestEntityTooLarge
		message = "request exceeds the per-request token maximum for this plan"
	case QuotaReasonNoUser:
		status = http.StatusNotFound
		message = "user not found"
	}
	return &AppError{
		Type:       ErrorTypeQuotaExceeded,
		Message:    message,
		Code:       string(check.Reason),
		StatusCode: status,
		Quota:      &check,
	}
}

// NewAllProvidersFailedError creates the terminal fallback error, wrapping the last failure
func NewAllProvidersFailedError(attempted int, last error) *AppError {
	appErr := &AppError{
		Type:       ErrorTypeAllProvidersFailed,
		Message:    fmt.Sprintf("model unavailable: all %d providers failed", attempted),
		Code:       "ALL_PROVIDERS_FAILED",
		StatusCode: http.StatusServiceUnavailable,
		Cause:      last,
	}
	if last != nil {
		appErr.LastError = last.Error()
	}
	return appErr
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		Code:       "INTERNAL",
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsRetryable reports whether err should move the fallback loop to the next candidate.
// Errors that are not AppErrors are treated as transient.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return err != nil
}

// HasType reports whether err is an AppError of the given type
func HasType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		// Return a copy without internal details
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
			Provider:   appErr.Provider,
			Quota:      appErr.Quota,
			LastError:  appErr.LastError,
		}
	}

	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    "internal server error",
		Code:       "INTERNAL",
		StatusCode: http.StatusInternalServerError,
	}
}
