package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/intentql/intentql-engine/pkg/apperrors"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit is operational and calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped and calls are blocked.
	CircuitOpen
	// CircuitHalfOpen means a single trial call is probing for recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is the shared contract for both breaker flavors. Allow returns an
// error wrapping apperrors.ErrCircuitOpen when the call must not proceed.
// Callers must pair every successful Allow with one RecordOutcome.
type Breaker interface {
	Allow() error
	RecordOutcome(success bool)
	State() CircuitState
}

// ConsecutiveBreaker trips after N consecutive failures. Used for AI calls,
// where a provider outage shows up as an unbroken failure run.
type ConsecutiveBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	cooldown         time.Duration
	lastFailure      time.Time
	state            CircuitState
}

// NewConsecutiveBreaker creates a breaker tripping after threshold
// consecutive failures, reopening for a probe after cooldown.
func NewConsecutiveBreaker(threshold int, cooldown time.Duration) *ConsecutiveBreaker {
	return &ConsecutiveBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     CircuitClosed,
	}
}

func (cb *ConsecutiveBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.cooldown {
			// One probe goes through; concurrent callers fail fast.
			cb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("%w: dependency failing (%d consecutive failures, last %v ago)",
			apperrors.ErrCircuitOpen, cb.consecutiveFails, time.Since(cb.lastFailure).Round(time.Second))
	case CircuitHalfOpen:
		return fmt.Errorf("%w: recovery probe in flight", apperrors.ErrCircuitOpen)
	default:
		return fmt.Errorf("%w: unknown breaker state %v", apperrors.ErrCircuitOpen, cb.state)
	}
}

func (cb *ConsecutiveBreaker) RecordOutcome(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.consecutiveFails = 0
		cb.state = CircuitClosed
		return
	}

	cb.consecutiveFails++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		return
	}
	if cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *ConsecutiveBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current failure run length.
func (cb *ConsecutiveBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}

type outcome struct {
	at time.Time
	ok bool
}

// RateBreaker trips when the failure rate over a sliding sample window
// crosses a threshold, provided a minimum call throughput was observed.
// Used for database calls, where intermittent failures matter more than
// unbroken runs.
type RateBreaker struct {
	mu            sync.Mutex
	threshold     float64
	window        time.Duration
	minThroughput int
	cooldown      time.Duration
	samples       []outcome
	lastFailure   time.Time
	state         CircuitState
	now           func() time.Time
}

// NewRateBreaker creates a breaker tripping when at least minThroughput
// calls were sampled within the window and the failure rate reached
// threshold (0.0-1.0).
func NewRateBreaker(threshold float64, window time.Duration, minThroughput int, cooldown time.Duration) *RateBreaker {
	return &RateBreaker{
		threshold:     threshold,
		window:        window,
		minThroughput: minThroughput,
		cooldown:      cooldown,
		state:         CircuitClosed,
		now:           time.Now,
	}
}

func (rb *RateBreaker) Allow() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	switch rb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if rb.now().Sub(rb.lastFailure) > rb.cooldown {
			rb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("%w: dependency failure rate exceeded %.0f%%, cooling down",
			apperrors.ErrCircuitOpen, rb.threshold*100)
	case CircuitHalfOpen:
		return fmt.Errorf("%w: recovery probe in flight", apperrors.ErrCircuitOpen)
	default:
		return fmt.Errorf("%w: unknown breaker state %v", apperrors.ErrCircuitOpen, rb.state)
	}
}

func (rb *RateBreaker) RecordOutcome(success bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	now := rb.now()

	if rb.state == CircuitHalfOpen {
		if success {
			rb.state = CircuitClosed
			rb.samples = nil
			return
		}
		rb.state = CircuitOpen
		rb.lastFailure = now
		return
	}

	rb.samples = append(rb.samples, outcome{at: now, ok: success})
	rb.prune(now)

	if !success {
		rb.lastFailure = now
	}

	total := len(rb.samples)
	if total < rb.minThroughput {
		return
	}
	fails := 0
	for _, s := range rb.samples {
		if !s.ok {
			fails++
		}
	}
	if float64(fails)/float64(total) >= rb.threshold {
		rb.state = CircuitOpen
	}
}

func (rb *RateBreaker) State() CircuitState {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.state
}

// prune drops samples older than the window. Caller holds the lock.
func (rb *RateBreaker) prune(now time.Time) {
	cutoff := now.Add(-rb.window)
	i := 0
	for ; i < len(rb.samples); i++ {
		if rb.samples[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		rb.samples = append([]outcome(nil), rb.samples[i:]...)
	}
}
