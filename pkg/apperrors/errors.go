package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrNoDateColumn       = errors.New("no date column available")
	ErrEmptyAIResult      = errors.New("AI returned empty result")
)
