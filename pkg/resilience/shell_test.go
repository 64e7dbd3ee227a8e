package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/intentql/intentql-engine/pkg/llm"
	"github.com/intentql/intentql-engine/pkg/models"
)

type mockQueryService struct {
	processFunc func(ctx context.Context, question string) (*models.QueryResponse, error)
	executeFunc func(ctx context.Context, sql string) (*models.QueryResponse, error)
	processed   int
	executed    int
}

func (m *mockQueryService) ProcessQuery(ctx context.Context, question string) (*models.QueryResponse, error) {
	m.processed++
	if m.processFunc != nil {
		return m.processFunc(ctx, question)
	}
	return &models.QueryResponse{Success: true, RowCount: 1}, nil
}

func (m *mockQueryService) ExecuteSQL(ctx context.Context, sql string) (*models.QueryResponse, error) {
	m.executed++
	if m.executeFunc != nil {
		return m.executeFunc(ctx, sql)
	}
	return &models.QueryResponse{Success: true, SQL: sql}, nil
}

func newQueryShell(inner QueryService, breaker Breaker) *ResilientQueryService {
	return NewResilientQueryService(inner, breaker, fastRetryConfig(2), time.Second, zap.NewNop())
}

func TestResilientQueryServicePassesThrough(t *testing.T) {
	inner := &mockQueryService{}
	s := newQueryShell(inner, NewRateBreaker(0.5, 30*time.Second, 3, time.Minute))

	resp, err := s.ProcessQuery(context.Background(), "total deposits")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !resp.Success || resp.RowCount != 1 {
		t.Errorf("response = %+v", resp)
	}
	if inner.processed != 1 {
		t.Errorf("inner called %d times", inner.processed)
	}
}

func TestResilientQueryServiceRetriesTransientFailures(t *testing.T) {
	inner := &mockQueryService{}
	inner.processFunc = func(ctx context.Context, question string) (*models.QueryResponse, error) {
		if inner.processed < 2 {
			return nil, errors.New("connection refused")
		}
		return &models.QueryResponse{Success: true}, nil
	}
	s := newQueryShell(inner, NewRateBreaker(0.9, 30*time.Second, 10, time.Minute))

	resp, err := s.ProcessQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !resp.Success {
		t.Errorf("response = %+v", resp)
	}
	if inner.processed != 2 {
		t.Errorf("inner called %d times, want 2", inner.processed)
	}
}

func TestResilientQueryServiceExhaustionReturnsUnavailable(t *testing.T) {
	inner := &mockQueryService{
		processFunc: func(ctx context.Context, question string) (*models.QueryResponse, error) {
			return nil, errors.New("i/o timeout")
		},
	}
	s := newQueryShell(inner, NewRateBreaker(0.9, 30*time.Second, 100, time.Minute))

	resp, err := s.ProcessQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("exhaustion must not surface an error, got %v", err)
	}
	if resp.Success || !resp.Unavailable {
		t.Errorf("response = %+v, want structured unavailable", resp)
	}
	if resp.Message == "" {
		t.Error("unavailable response should carry a message")
	}
	if inner.processed != 3 {
		t.Errorf("inner called %d times, want initial attempt plus 2 retries", inner.processed)
	}
}

func TestResilientQueryServicePermanentErrorPropagates(t *testing.T) {
	permanent := errors.New("invalid column name 'Depossits'")
	inner := &mockQueryService{
		executeFunc: func(ctx context.Context, sql string) (*models.QueryResponse, error) {
			return nil, permanent
		},
	}
	s := newQueryShell(inner, NewRateBreaker(0.9, 30*time.Second, 100, time.Minute))

	// A data error is not a try-again-shortly condition: no retry, no
	// unavailable response, the caller sees the original error.
	resp, err := s.ExecuteSQL(context.Background(), "SELECT bad")
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the inner error", err)
	}
	if resp != nil {
		t.Errorf("response = %+v, want none for a permanent error", resp)
	}
	if inner.executed != 1 {
		t.Errorf("permanent error retried %d times", inner.executed)
	}
}

func TestResilientQueryServiceCancellationDoesNotTripBreaker(t *testing.T) {
	inner := &mockQueryService{
		processFunc: func(ctx context.Context, question string) (*models.QueryResponse, error) {
			return nil, context.Canceled
		},
	}
	breaker := NewConsecutiveBreaker(1, time.Minute)
	s := newQueryShell(inner, breaker)

	if _, err := s.ProcessQuery(context.Background(), "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if breaker.State() != CircuitClosed {
		t.Errorf("breaker state = %v, caller cancellation must not count as a failure", breaker.State())
	}
	if breaker.ConsecutiveFailures() != 0 {
		t.Errorf("failures = %d", breaker.ConsecutiveFailures())
	}
}

func TestResilientQueryServiceOpenBreakerFailsFast(t *testing.T) {
	inner := &mockQueryService{}
	breaker := NewConsecutiveBreaker(1, time.Minute)
	breaker.RecordOutcome(false)
	s := newQueryShell(inner, breaker)

	resp, err := s.ProcessQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !resp.Unavailable {
		t.Errorf("response = %+v", resp)
	}
	if inner.processed != 0 {
		t.Errorf("inner must not run behind an open breaker, called %d times", inner.processed)
	}
}

func newAIShell(inner llm.AIClient, breaker Breaker) *ResilientAIService {
	return NewResilientAIService(inner, breaker, fastRetryConfig(2), time.Second, zap.NewNop())
}

func TestResilientAIServicePassesThrough(t *testing.T) {
	mock := &llm.MockAIClient{}
	s := newAIShell(mock, NewConsecutiveBreaker(5, time.Minute))

	sql, err := s.GenerateSQL(context.Background(), "prompt", "system")
	if err != nil {
		t.Fatalf("GenerateSQL: %v", err)
	}
	if sql != "SELECT 1" {
		t.Errorf("sql = %q", sql)
	}
	if s.GetModel() != "mock-model" {
		t.Errorf("model = %q", s.GetModel())
	}
}

func TestResilientAIServiceExhaustionReturnsFallback(t *testing.T) {
	mock := &llm.MockAIClient{
		GenerateInsightFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("upstream 503")
		},
	}
	s := newAIShell(mock, NewConsecutiveBreaker(10, time.Minute))

	out, err := s.GenerateInsight(context.Background(), "explain")
	if err != nil {
		t.Fatalf("exhaustion must not surface an error, got %v", err)
	}
	if out != AIFallbackMessage {
		t.Errorf("out = %q, want the fallback placeholder", out)
	}
	if mock.GenerateInsightCalls != 3 {
		t.Errorf("inner called %d times, want 3", mock.GenerateInsightCalls)
	}
}

func TestResilientAIServiceBreakerTripsAfterFailures(t *testing.T) {
	mock := &llm.MockAIClient{
		GenerateSQLFunc: func(ctx context.Context, prompt, systemMessage string) (string, error) {
			return "", errors.New("upstream 500")
		},
	}
	breaker := NewConsecutiveBreaker(3, time.Minute)
	s := newAIShell(mock, breaker)

	if _, err := s.GenerateSQL(context.Background(), "p", "s"); err != nil {
		t.Fatalf("GenerateSQL: %v", err)
	}
	if breaker.State() != CircuitOpen {
		t.Fatalf("breaker state = %v after 3 failed attempts", breaker.State())
	}

	// The next call fails fast without touching the provider.
	calls := mock.GenerateSQLCalls
	out, err := s.GenerateSQL(context.Background(), "p", "s")
	if err != nil {
		t.Fatalf("GenerateSQL: %v", err)
	}
	if out != AIFallbackMessage {
		t.Errorf("out = %q", out)
	}
	if mock.GenerateSQLCalls != calls {
		t.Errorf("provider called %d more times behind an open breaker", mock.GenerateSQLCalls-calls)
	}
}

func collectEvents(t *testing.T, ch <-chan llm.StreamEvent) []llm.StreamEvent {
	t.Helper()
	var events []llm.StreamEvent
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining stream")
		}
	}
}

func TestResilientAIServiceStreamPassesThrough(t *testing.T) {
	mock := &llm.MockAIClient{}
	breaker := NewConsecutiveBreaker(5, time.Minute)
	s := newAIShell(mock, breaker)

	ch, err := s.GenerateSQLStream(context.Background(), "p", "s")
	if err != nil {
		t.Fatalf("GenerateSQLStream: %v", err)
	}
	events := collectEvents(t, ch)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != llm.StreamEventText || events[1].Type != llm.StreamEventDone {
		t.Errorf("events = %+v", events)
	}
	if breaker.State() != CircuitClosed {
		t.Errorf("breaker state = %v", breaker.State())
	}
}

func TestResilientAIServiceStreamFailureBeforeOutput(t *testing.T) {
	mock := &llm.MockAIClient{
		GenerateSQLStreamFunc: func(ctx context.Context, prompt, systemMessage string) (<-chan llm.StreamEvent, error) {
			events := make(chan llm.StreamEvent, 1)
			events <- llm.StreamEvent{Type: llm.StreamEventError, Content: "provider down"}
			close(events)
			return events, nil
		},
	}
	s := newAIShell(mock, NewConsecutiveBreaker(5, time.Minute))

	ch, err := s.GenerateSQLStream(context.Background(), "p", "s")
	if err != nil {
		t.Fatalf("GenerateSQLStream: %v", err)
	}
	events := collectEvents(t, ch)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != llm.StreamEventError {
		t.Errorf("first event = %+v, want error", events[0])
	}
	if events[1].Type != llm.StreamEventFallback || events[1].Content != AIFallbackMessage {
		t.Errorf("second event = %+v, want fallback", events[1])
	}
}

func TestResilientAIServiceStreamFailureAfterPartialOutput(t *testing.T) {
	mock := &llm.MockAIClient{
		GenerateSQLStreamFunc: func(ctx context.Context, prompt, systemMessage string) (<-chan llm.StreamEvent, error) {
			events := make(chan llm.StreamEvent, 2)
			events <- llm.StreamEvent{Type: llm.StreamEventText, Content: "SELECT"}
			events <- llm.StreamEvent{Type: llm.StreamEventError, Content: "connection lost"}
			close(events)
			return events, nil
		},
	}
	breaker := NewConsecutiveBreaker(5, time.Minute)
	s := newAIShell(mock, breaker)

	ch, err := s.GenerateSQLStream(context.Background(), "p", "s")
	if err != nil {
		t.Fatalf("GenerateSQLStream: %v", err)
	}
	events := collectEvents(t, ch)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != llm.StreamEventText {
		t.Errorf("first event = %+v", events[0])
	}
	// Delivered text is never retracted, so no fallback follows the error.
	if events[1].Type != llm.StreamEventError {
		t.Errorf("terminal event = %+v, want error only", events[1])
	}
	if breaker.ConsecutiveFailures() != 1 {
		t.Errorf("failures = %d, stream failure should count against the breaker", breaker.ConsecutiveFailures())
	}
}

func TestResilientAIServiceStreamOpenBreaker(t *testing.T) {
	mock := &llm.MockAIClient{}
	breaker := NewConsecutiveBreaker(1, time.Minute)
	breaker.RecordOutcome(false)
	s := newAIShell(mock, breaker)

	ch, err := s.GenerateSQLStream(context.Background(), "p", "s")
	if err != nil {
		t.Fatalf("GenerateSQLStream: %v", err)
	}
	events := collectEvents(t, ch)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != llm.StreamEventError || events[1].Type != llm.StreamEventFallback {
		t.Errorf("events = %+v", events)
	}
	if mock.StreamCalls != 0 {
		t.Errorf("provider stream opened %d times behind an open breaker", mock.StreamCalls)
	}
}
