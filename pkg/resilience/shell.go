package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/apperrors"
	"github.com/intentql/intentql-engine/pkg/llm"
	"github.com/intentql/intentql-engine/pkg/models"
)

// AIFallbackMessage is the placeholder returned when AI generation is
// exhausted or the breaker is open. Callers can match on it to suppress
// insight rendering.
const AIFallbackMessage = "[AI temporarily unavailable] The service could not generate a response. Please try again shortly."

const unavailableMessage = "The query service is temporarily unavailable. Please try again in a moment."

// QueryService is the contract the resilient decorator preserves. The inner
// implementation runs the full synthesis-and-execution pipeline.
type QueryService interface {
	ProcessQuery(ctx context.Context, question string) (*models.QueryResponse, error)
	ExecuteSQL(ctx context.Context, sql string) (*models.QueryResponse, error)
}

// ResilientQueryService decorates a QueryService with retry, a failure-rate
// circuit breaker and a fixed processing deadline. Transient exhaustion and
// an open breaker return a structured unavailable response instead of an
// error; permanent errors propagate unchanged.
type ResilientQueryService struct {
	inner   QueryService
	breaker Breaker
	retry   *RetryConfig
	timeout time.Duration
	logger  *zap.Logger
}

// NewResilientQueryService wraps inner with the given breaker and retry
// policy. The timeout bounds one logical request including all retries.
func NewResilientQueryService(inner QueryService, breaker Breaker, retryCfg *RetryConfig, timeout time.Duration, logger *zap.Logger) *ResilientQueryService {
	if retryCfg == nil {
		retryCfg = DefaultRetryConfig()
	}
	return &ResilientQueryService{
		inner:   inner,
		breaker: breaker,
		retry:   retryCfg,
		timeout: timeout,
		logger:  logger.Named("resilient-query"),
	}
}

func (s *ResilientQueryService) ProcessQuery(ctx context.Context, question string) (*models.QueryResponse, error) {
	return s.call(ctx, "process_query", func(ctx context.Context) (*models.QueryResponse, error) {
		return s.inner.ProcessQuery(ctx, question)
	})
}

func (s *ResilientQueryService) ExecuteSQL(ctx context.Context, sql string) (*models.QueryResponse, error) {
	return s.call(ctx, "execute_sql", func(ctx context.Context) (*models.QueryResponse, error) {
		return s.inner.ExecuteSQL(ctx, sql)
	})
}

// call applies the fixed deadline once for the whole logical request. Each
// retry attempt shares the same budget rather than extending it.
func (s *ResilientQueryService) call(ctx context.Context, op string, fn func(ctx context.Context) (*models.QueryResponse, error)) (*models.QueryResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := RetryWithResult(ctx, s.retry, func() (*models.QueryResponse, error) {
		if err := s.breaker.Allow(); err != nil {
			return nil, err
		}
		r, err := fn(ctx)
		// A caller abandoning the request says nothing about the
		// dependency's health.
		if !errors.Is(err, context.Canceled) {
			s.breaker.RecordOutcome(err == nil)
		}
		return r, err
	})
	if err != nil {
		// Only circuit-open and exhausted transient failures become the
		// try-again-shortly response. Permanent errors (bad SQL, missing
		// columns) propagate so callers can tell the two apart.
		if errors.Is(err, apperrors.ErrCircuitOpen) || IsTransient(err) {
			s.logger.Warn("query operation exhausted, returning unavailable response",
				zap.String("operation", op),
				zap.Error(err))
			return unavailableResponse(), nil
		}
		return nil, err
	}
	return resp, nil
}

func unavailableResponse() *models.QueryResponse {
	return &models.QueryResponse{
		Success:     false,
		Unavailable: true,
		Message:     unavailableMessage,
		ExecutedAt:  time.Now(),
	}
}

// ResilientAIService decorates an AIClient with retry, a consecutive-failure
// circuit breaker and a per-call deadline. Exhaustion returns a marked
// placeholder string rather than an error.
type ResilientAIService struct {
	inner   llm.AIClient
	breaker Breaker
	retry   *RetryConfig
	timeout time.Duration
	logger  *zap.Logger
}

var _ llm.AIClient = (*ResilientAIService)(nil)

// NewResilientAIService wraps inner with the given breaker and retry policy.
func NewResilientAIService(inner llm.AIClient, breaker Breaker, retryCfg *RetryConfig, timeout time.Duration, logger *zap.Logger) *ResilientAIService {
	if retryCfg == nil {
		retryCfg = DefaultRetryConfig()
	}
	return &ResilientAIService{
		inner:   inner,
		breaker: breaker,
		retry:   retryCfg,
		timeout: timeout,
		logger:  logger.Named("resilient-ai"),
	}
}

func (s *ResilientAIService) GenerateSQL(ctx context.Context, prompt, systemMessage string) (string, error) {
	return s.generate(ctx, "generate_sql", func(ctx context.Context) (string, error) {
		return s.inner.GenerateSQL(ctx, prompt, systemMessage)
	})
}

func (s *ResilientAIService) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, "generate_insight", func(ctx context.Context) (string, error) {
		return s.inner.GenerateInsight(ctx, prompt)
	})
}

func (s *ResilientAIService) generate(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := RetryWithResult(ctx, s.retry, func() (string, error) {
		if err := s.breaker.Allow(); err != nil {
			return "", err
		}
		r, err := fn(ctx)
		if !errors.Is(err, context.Canceled) {
			s.breaker.RecordOutcome(err == nil)
		}
		return r, err
	})
	if err != nil {
		s.logger.Warn("AI operation exhausted, returning fallback",
			zap.String("operation", op),
			zap.Bool("circuit_open", errors.Is(err, apperrors.ErrCircuitOpen)),
			zap.Error(err))
		return AIFallbackMessage, nil
	}
	return out, nil
}

// GenerateSQLStream applies the breaker and deadline around the stream. A
// failure before any text was delivered yields one error event followed by a
// fallback event; a failure after partial output yields a terminal error
// event only, since delivered content is never retracted.
func (s *ResilientAIService) GenerateSQLStream(ctx context.Context, prompt, systemMessage string) (<-chan llm.StreamEvent, error) {
	out := make(chan llm.StreamEvent)

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.breaker.Allow(); err != nil {
			s.emitFailure(ctx, out, err, false)
			return
		}

		inner, err := s.inner.GenerateSQLStream(ctx, prompt, systemMessage)
		if err != nil {
			s.breaker.RecordOutcome(false)
			s.emitFailure(ctx, out, err, false)
			return
		}

		delivered := false
		for event := range inner {
			switch event.Type {
			case llm.StreamEventText:
				delivered = true
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			case llm.StreamEventDone:
				s.breaker.RecordOutcome(true)
				select {
				case out <- event:
				case <-ctx.Done():
				}
				return
			case llm.StreamEventError:
				s.breaker.RecordOutcome(false)
				s.emitFailure(ctx, out, errors.New(event.Content), delivered)
				return
			}
		}
	}()

	return out, nil
}

func (s *ResilientAIService) emitFailure(ctx context.Context, out chan<- llm.StreamEvent, err error, partialDelivered bool) {
	s.logger.Warn("AI stream failed",
		zap.Bool("partial_output", partialDelivered),
		zap.Error(err))

	events := []llm.StreamEvent{{Type: llm.StreamEventError, Content: err.Error()}}
	if !partialDelivered {
		events = append(events, llm.StreamEvent{Type: llm.StreamEventFallback, Content: AIFallbackMessage})
	}
	for _, e := range events {
		select {
		case out <- e:
		case <-ctx.Done():
			return
		}
	}
}

func (s *ResilientAIService) GetModel() string {
	return s.inner.GetModel()
}
