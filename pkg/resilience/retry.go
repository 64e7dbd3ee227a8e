// Package resilience wraps downstream dependencies with retry, circuit
// breaking, timeouts and structured fallbacks.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/intentql/intentql-engine/pkg/apperrors"
)

// RetryConfig defines retry behavior with exponential backoff.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- jitter to prevent thundering herd
}

// DefaultRetryConfig retries up to 3 times with 1s/2s/4s backoff.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// BestEffortRetryConfig is the lighter policy for side operations such as
// cache writes and suggestion lookups.
func BestEffortRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:   1,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// RetryableError lets errors declare their own retryability. AI errors
// implement this to distinguish rate limits from auth failures.
type RetryableError interface {
	error
	IsRetryable() bool
}

// SQL Server error numbers treated as transient.
var transientMSSQLNumbers = map[int32]bool{
	-2:   true, // client timeout
	53:   true, // network path not found
	121:  true, // semaphore timeout
	1205: true, // deadlock victim
	1222: true, // lock request timeout
	8645: true, // memory resources wait timeout
	8651: true, // low memory condition
}

// Postgres SQLSTATE codes treated as transient.
var transientPGCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"57P03": true, // cannot_connect_now
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"53300": true, // too_many_connections
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"i/o timeout",
	"network is unreachable",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service busy",
	"too many requests",
}

// IsTransient reports whether an error is worth retrying. Circuit-open and
// caller cancellation are never transient; driver-specific codes and
// self-declared retryable errors are checked before pattern matching.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}

	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		return transientMSSQLNumbers[sqlErr.Number]
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientPGCodes[pgErr.Code]
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Retry executes fn, retrying transient failures with exponential backoff.
// Non-transient errors return immediately. The context bounds all attempts
// together; once it is done no further attempt starts.
func Retry(ctx context.Context, cfg *RetryConfig, fn func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return lastErr
			}
		}
	}

	return lastErr
}

// RetryWithResult is Retry for functions that return a value.
func RetryWithResult[T any](ctx context.Context, cfg *RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
