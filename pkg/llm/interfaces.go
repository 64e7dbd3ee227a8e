// Package llm provides the AI generation clients used for SQL drafting and
// insight generation, behind a provider-neutral interface.
package llm

import "context"

// StreamEventType defines types of streaming events.
type StreamEventType string

const (
	StreamEventText     StreamEventType = "text"
	StreamEventDone     StreamEventType = "done"
	StreamEventError    StreamEventType = "error"
	StreamEventFallback StreamEventType = "fallback"
)

// StreamEvent is one event of a streaming generation.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
}

// AIClient defines the interface for AI-assisted text generation. Use it for
// dependency injection so the resilience shell and tests can wrap or mock
// the provider.
type AIClient interface {
	// GenerateSQL drafts a SQL statement from a prompt and system message.
	GenerateSQL(ctx context.Context, prompt, systemMessage string) (string, error)

	// GenerateInsight produces a prose explanation or insight for a result.
	GenerateInsight(ctx context.Context, prompt string) (string, error)

	// GenerateSQLStream streams generation output. The returned channel is
	// closed after the terminal event (done or error).
	GenerateSQLStream(ctx context.Context, prompt, systemMessage string) (<-chan StreamEvent, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure implementations satisfy AIClient at compile time.
var (
	_ AIClient = (*Client)(nil)
	_ AIClient = (*AnthropicClient)(nil)
	_ AIClient = (*MockAIClient)(nil)
)
