package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackgroundRunner executes best-effort side effects (cache writes,
// suggestion refreshes) detached from the request's cancellation signal.
// Errors are logged and dropped; a task can never fail its caller.
type BackgroundRunner struct {
	sem         chan struct{}
	taskTimeout time.Duration
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewBackgroundRunner creates a runner with bounded concurrency. Tasks
// beyond the bound queue on submission goroutines rather than being dropped.
func NewBackgroundRunner(maxConcurrent int, taskTimeout time.Duration, logger *zap.Logger) *BackgroundRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}
	return &BackgroundRunner{
		sem:         make(chan struct{}, maxConcurrent),
		taskTimeout: taskTimeout,
		logger:      logger.Named("background"),
	}
}

// Go schedules fn on a fresh context with the runner's own deadline. The
// caller's context is deliberately not inherited, so request cancellation
// does not abort the side effect.
func (r *BackgroundRunner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.taskTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.logger.Warn("background task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all scheduled tasks finish. Used on shutdown and in
// tests.
func (r *BackgroundRunner) Wait() {
	r.wg.Wait()
}
