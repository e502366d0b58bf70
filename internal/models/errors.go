package models

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents validation errors (4xx)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeForbidden represents upstream authorization-denied errors (403)
	ErrorTypeForbidden ErrorType = "forbidden"
	// ErrorTypeQuota represents upstream quota exhaustion (429)
	ErrorTypeQuota ErrorType = "quota"
	// ErrorTypeProvider represents provider-specific errors (502/503)
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeTimeout represents timeout errors (504)
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeChainExhausted represents a fully failed fallback chain (502)
	ErrorTypeChainExhausted ErrorType = "chain_exhausted"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error. Message is what the
// client may see; diagnostic detail stays in the non-message fields.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	Attempts   int       `json:"-"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
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

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeQuota:
		return http.StatusTooManyRequests
	case ErrorTypeProvider, ErrorTypeChainExhausted:
		return http.StatusBadGateway
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewProviderError creates a retryable provider error
func NewProviderError(provider, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Message:    fmt.Sprintf("provider %s error: %s", provider, message),
		Provider:   provider,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewQuotaError creates a quota-exhaustion error for a provider+model pair
func NewQuotaError(provider, model string) *AppError {
	return &AppError{
		Type:       ErrorTypeQuota,
		Message:    fmt.Sprintf("quota exhausted for %s/%s", provider, model),
		Provider:   provider,
		Model:      model,
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// NewForbiddenError creates an upstream authorization-denied error
func NewForbiddenError(provider string, statusCode int) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Message:    fmt.Sprintf("provider %s denied authorization", provider),
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation %s timed out", operation),
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewChainExhaustedError creates the terminal error for a fully failed chain.
// The message is client-visible, so it names only the model the caller asked
// for; the attempt count stays in the Attempts field for logs and the trace.
func NewChainExhaustedError(model string, attempts int) *AppError {
	return &AppError{
		Type:       ErrorTypeChainExhausted,
		Message:    fmt.Sprintf("upstream request for %s failed", model),
		Model:      model,
		Attempts:   attempts,
		StatusCode: http.StatusBadGateway,
		Retryable:  false,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}
