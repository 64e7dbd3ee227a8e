package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/intentql/intentql-engine/pkg/apperrors"
)

func TestConsecutiveBreakerTripsAtThreshold(t *testing.T) {
	cb := NewConsecutiveBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := cb.Allow(); err != nil {
			t.Fatalf("closed breaker blocked call %d: %v", i, err)
		}
		cb.RecordOutcome(false)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v before the threshold", cb.State())
	}

	cb.RecordOutcome(false)
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v after 3 consecutive failures", cb.State())
	}

	err := cb.Allow()
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("open breaker error = %v, want ErrCircuitOpen", err)
	}
}

func TestConsecutiveBreakerSuccessResetsRun(t *testing.T) {
	cb := NewConsecutiveBreaker(3, time.Minute)

	cb.RecordOutcome(false)
	cb.RecordOutcome(false)
	cb.RecordOutcome(true)
	cb.RecordOutcome(false)
	cb.RecordOutcome(false)

	if cb.State() != CircuitClosed {
		t.Errorf("interleaved successes must keep the breaker closed, state = %v", cb.State())
	}
	if cb.ConsecutiveFailures() != 2 {
		t.Errorf("failure run = %d, want 2", cb.ConsecutiveFailures())
	}
}

func TestConsecutiveBreakerHalfOpenProbe(t *testing.T) {
	cb := NewConsecutiveBreaker(1, 10*time.Millisecond)
	cb.RecordOutcome(false)
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v", cb.State())
	}

	// Before the cooldown elapses the breaker stays shut.
	if err := cb.Allow(); !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Fatalf("expected fail-fast during cooldown, got %v", err)
	}

	time.Sleep(15 * time.Millisecond)

	// One probe goes through, concurrent callers fail fast.
	if err := cb.Allow(); err != nil {
		t.Fatalf("probe blocked: %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Fatalf("second caller during probe got %v", err)
	}

	cb.RecordOutcome(true)
	if cb.State() != CircuitClosed {
		t.Errorf("successful probe should close the breaker, state = %v", cb.State())
	}
}

func TestConsecutiveBreakerFailedProbeReopens(t *testing.T) {
	cb := NewConsecutiveBreaker(1, time.Millisecond)
	cb.RecordOutcome(false)
	time.Sleep(5 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("probe blocked: %v", err)
	}
	cb.RecordOutcome(false)
	if cb.State() != CircuitOpen {
		t.Errorf("failed probe should reopen the breaker, state = %v", cb.State())
	}
}

func newTestRateBreaker(threshold float64, minThroughput int) (*RateBreaker, *time.Time) {
	rb := NewRateBreaker(threshold, 30*time.Second, minThroughput, time.Minute)
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rb.now = func() time.Time { return current }
	return rb, &current
}

func TestRateBreakerTripsOnFailureRate(t *testing.T) {
	rb, _ := newTestRateBreaker(0.5, 3)

	rb.RecordOutcome(true)
	rb.RecordOutcome(false)
	if rb.State() != CircuitClosed {
		t.Fatalf("state = %v below minimum throughput", rb.State())
	}

	rb.RecordOutcome(false)
	if rb.State() != CircuitOpen {
		t.Fatalf("state = %v with 2/3 failures over a 50%% threshold", rb.State())
	}
	if err := rb.Allow(); !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("open breaker error = %v", err)
	}
}

func TestRateBreakerIgnoresLowThroughput(t *testing.T) {
	rb, _ := newTestRateBreaker(0.5, 5)

	for i := 0; i < 4; i++ {
		rb.RecordOutcome(false)
	}
	if rb.State() != CircuitClosed {
		t.Errorf("state = %v, all-failure sample below minimum throughput must not trip", rb.State())
	}
}

func TestRateBreakerWindowExpiresOldSamples(t *testing.T) {
	rb, clock := newTestRateBreaker(0.5, 3)

	rb.RecordOutcome(false)
	rb.RecordOutcome(false)

	// Old failures age out of the window before throughput is reached.
	*clock = clock.Add(45 * time.Second)
	rb.RecordOutcome(false)
	if rb.State() != CircuitClosed {
		t.Errorf("state = %v, expired samples should not count toward the rate", rb.State())
	}
}

func TestRateBreakerHalfOpenRecovery(t *testing.T) {
	rb, clock := newTestRateBreaker(0.5, 2)

	rb.RecordOutcome(false)
	rb.RecordOutcome(false)
	if rb.State() != CircuitOpen {
		t.Fatalf("state = %v", rb.State())
	}

	*clock = clock.Add(2 * time.Minute)
	if err := rb.Allow(); err != nil {
		t.Fatalf("probe blocked: %v", err)
	}
	if rb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", rb.State())
	}
	if err := rb.Allow(); !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Fatalf("second caller during probe got %v", err)
	}

	rb.RecordOutcome(true)
	if rb.State() != CircuitClosed {
		t.Fatalf("state = %v after successful probe", rb.State())
	}

	// The sample history is cleared on recovery; one new failure must not
	// re-trip instantly.
	rb.RecordOutcome(false)
	if rb.State() != CircuitClosed {
		t.Errorf("state = %v, recovery should discard the old failure samples", rb.State())
	}
}

func TestRateBreakerFailedProbeReopens(t *testing.T) {
	rb, clock := newTestRateBreaker(0.5, 2)
	rb.RecordOutcome(false)
	rb.RecordOutcome(false)

	*clock = clock.Add(2 * time.Minute)
	if err := rb.Allow(); err != nil {
		t.Fatalf("probe blocked: %v", err)
	}
	rb.RecordOutcome(false)
	if rb.State() != CircuitOpen {
		t.Errorf("state = %v, failed probe should reopen", rb.State())
	}

	// Cooldown restarts from the failed probe.
	*clock = clock.Add(30 * time.Second)
	if err := rb.Allow(); !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("expected fail-fast before the new cooldown elapses, got %v", err)
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", tc.state, got, tc.want)
		}
	}
}
