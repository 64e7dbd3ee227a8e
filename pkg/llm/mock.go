package llm

import (
	"context"
	"sync"
)

// MockAIClient is a configurable AIClient for tests.
type MockAIClient struct {
	mu sync.Mutex

	GenerateSQLFunc       func(ctx context.Context, prompt, systemMessage string) (string, error)
	GenerateInsightFunc   func(ctx context.Context, prompt string) (string, error)
	GenerateSQLStreamFunc func(ctx context.Context, prompt, systemMessage string) (<-chan StreamEvent, error)
	Model                 string

	GenerateSQLCalls     int
	GenerateInsightCalls int
	StreamCalls          int
}

func (m *MockAIClient) GenerateSQL(ctx context.Context, prompt, systemMessage string) (string, error) {
	m.mu.Lock()
	m.GenerateSQLCalls++
	m.mu.Unlock()
	if m.GenerateSQLFunc != nil {
		return m.GenerateSQLFunc(ctx, prompt, systemMessage)
	}
	return "SELECT 1", nil
}

func (m *MockAIClient) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.GenerateInsightCalls++
	m.mu.Unlock()
	if m.GenerateInsightFunc != nil {
		return m.GenerateInsightFunc(ctx, prompt)
	}
	return "mock insight", nil
}

func (m *MockAIClient) GenerateSQLStream(ctx context.Context, prompt, systemMessage string) (<-chan StreamEvent, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.mu.Unlock()
	if m.GenerateSQLStreamFunc != nil {
		return m.GenerateSQLStreamFunc(ctx, prompt, systemMessage)
	}
	events := make(chan StreamEvent, 2)
	events <- StreamEvent{Type: StreamEventText, Content: "SELECT 1"}
	events <- StreamEvent{Type: StreamEventDone}
	close(events)
	return events, nil
}

func (m *MockAIClient) GetModel() string {
	if m.Model != "" {
		return m.Model
	}
	return "mock-model"
}
