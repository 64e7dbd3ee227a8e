package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/intentql/intentql-engine/pkg/apperrors"
)

// ErrorType classifies AI generation failures.
type ErrorType string

const (
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeEmpty    ErrorType = "empty_result"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a structured AI error with explicit retryability, consumed by the
// resilience shell without importing provider SDKs.
type Error struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the resilience retry interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a structured AI error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

// EmptyResultError marks an empty generation, which is treated as transient:
// providers occasionally return empty completions under load.
func EmptyResultError(model string) *Error {
	return NewError(ErrorTypeEmpty, fmt.Sprintf("model %s returned no content", model), true, apperrors.ErrEmptyAIResult)
}

// ClassifyError categorizes a provider error into a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}

	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return NewError(ErrorTypeAuth, "authentication failed", false, err)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return NewError(ErrorTypeModel, "model not found", false, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return NewError(ErrorTypeEndpoint, "connection failed", true, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "context canceled"):
		return NewError(ErrorTypeEndpoint, "request timeout", true, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return NewError(ErrorTypeUnknown, "rate limited", true, err)
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "504"):
		return NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		return NewError(ErrorTypeUnknown, "generation error", false, err)
	}
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}
	return false
}
