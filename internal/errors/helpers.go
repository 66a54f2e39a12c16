package errors

import (
	"fmt"
	"net/http"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewUnauthorizedError creates an authentication error
func NewUnauthorizedError(reason string) *AppError {
	return New(ErrCodeUnauthorized, "unauthorized").
		WithContext("reason", reason).
		WithUserMessage("Authentication required")
}

// NewRateLimitedError creates a rate limit error. The caller must not retry
// before the window elapses.
func NewRateLimitedError(limit int, windowSec int) *AppError {
	return New(ErrCodeRateLimited, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window_sec", windowSec).
		WithUserMessage("Too many messages sent, please try again later")
}

// NewProviderError creates an error for a failed channel provider call.
// 5xx, 429 and 408 responses are marked retryable for higher-level schedulers;
// the dispatcher itself never retries.
func NewProviderError(provider string, statusCode int, err error) *AppError {
	code := ErrCodeProviderRejected
	if statusCode == 0 || statusCode >= 500 {
		code = ErrCodeProviderUnavailable
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s provider call failed", provider)).
		WithContext("provider", provider).
		WithContext("status_code", statusCode).
		WithUserMessage("Message could not be delivered by the provider")

	if statusCode == 0 || statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout {
		appErr.Retryable = true
	}

	return appErr
}

// NewProviderMisconfiguredError flags missing provider credentials or sender
// configuration. Raised before any network call; never retryable.
func NewProviderMisconfiguredError(provider, missing string) *AppError {
	return New(ErrCodeProviderMisconfigured, fmt.Sprintf("%s provider is not configured", provider)).
		WithContext("provider", provider).
		WithContext("missing", missing).
		WithUserMessage("Messaging provider is not configured")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatus maps an error to the status code returned to API callers.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeValidationFailed, ErrCodeProviderRejected, ErrCodeProviderMisconfigured:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
