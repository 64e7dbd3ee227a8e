package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 2000

// AnthropicClient provides access to Anthropic's Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a client for Anthropic models.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey),
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("llm"),
	}, nil
}

func (c *AnthropicClient) GenerateSQL(ctx context.Context, prompt, systemMessage string) (string, error) {
	return c.complete(ctx, prompt, systemMessage)
}

func (c *AnthropicClient) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, "You explain SQL query results for business users in plain language.")
}

func (c *AnthropicClient) messagesRequest(prompt, systemMessage string) anthropic.MessagesRequest {
	return anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    systemMessage,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	}
}

func (c *AnthropicClient) complete(ctx context.Context, prompt, systemMessage string) (string, error) {
	c.logger.Debug("AI request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	resp, err := c.client.CreateMessages(ctx, c.messagesRequest(prompt, systemMessage))
	if err != nil {
		return "", ClassifyError(err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			out.WriteString(*block.Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", EmptyResultError(c.model)
	}
	return out.String(), nil
}

// GenerateSQLStream streams deltas via the Messages streaming API. Content
// already delivered is never retracted; a mid-stream failure surfaces as one
// error event.
func (c *AnthropicClient) GenerateSQLStream(ctx context.Context, prompt, systemMessage string) (<-chan StreamEvent, error) {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		req := anthropic.MessagesStreamRequest{
			MessagesRequest: c.messagesRequest(prompt, systemMessage),
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if text := data.Delta.GetText(); text != "" {
					emit(ctx, events, StreamEvent{Type: StreamEventText, Content: text})
				}
			},
		}

		if _, err := c.client.CreateMessagesStream(ctx, req); err != nil {
			emit(ctx, events, StreamEvent{Type: StreamEventError, Content: ClassifyError(err).Error()})
			return
		}
		emit(ctx, events, StreamEvent{Type: StreamEventDone})
	}()

	return events, nil
}

func (c *AnthropicClient) GetModel() string {
	return c.model
}
