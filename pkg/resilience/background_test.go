package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBackgroundRunnerRunsTasks(t *testing.T) {
	r := NewBackgroundRunner(2, time.Second, zap.NewNop())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		r.Go("task", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	r.Wait()

	if ran.Load() != 5 {
		t.Errorf("ran = %d, want 5", ran.Load())
	}
}

func TestBackgroundRunnerBoundsConcurrency(t *testing.T) {
	r := NewBackgroundRunner(2, time.Second, zap.NewNop())

	var mu sync.Mutex
	inFlight, peak := 0, 0

	for i := 0; i < 8; i++ {
		r.Go("task", func(ctx context.Context) error {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		})
	}
	r.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
}

func TestBackgroundRunnerSwallowsErrorsAndPanics(t *testing.T) {
	r := NewBackgroundRunner(2, time.Second, zap.NewNop())

	r.Go("failing", func(ctx context.Context) error {
		return errors.New("cache write failed")
	})
	r.Go("panicking", func(ctx context.Context) error {
		panic("boom")
	})

	// Wait returning at all proves the panic was contained.
	r.Wait()
}

func TestBackgroundRunnerDetachesFromCallerContext(t *testing.T) {
	r := NewBackgroundRunner(1, time.Second, zap.NewNop())

	callerCtx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawLiveContext atomic.Bool
	r.Go("detached", func(ctx context.Context) error {
		sawLiveContext.Store(ctx.Err() == nil)
		return nil
	})
	r.Wait()

	if callerCtx.Err() == nil {
		t.Fatal("test setup broken: caller context should be cancelled")
	}
	if !sawLiveContext.Load() {
		t.Error("task context must not inherit the caller's cancellation")
	}
}

func TestBackgroundRunnerTaskTimeout(t *testing.T) {
	r := NewBackgroundRunner(1, 10*time.Millisecond, zap.NewNop())

	var deadlineSet atomic.Bool
	r.Go("bounded", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadlineSet.Store(ok)
		return nil
	})
	r.Wait()

	if !deadlineSet.Load() {
		t.Error("task context should carry the runner's deadline")
	}
}
