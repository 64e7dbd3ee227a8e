package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client provides access to OpenAI-compatible generation endpoints.
type Client struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// Config holds configuration for creating an AI client.
type Config struct {
	Endpoint string // Base URL, e.g. "https://api.openai.com/v1"
	Model    string // Model name, e.g. "gpt-4o"
	APIKey   string // Optional for local endpoints
	// MaxTokens bounds generation length for providers that require it.
	MaxTokens int
}

// NewClient creates a new OpenAI-compatible AI client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm"),
	}, nil
}

// GenerateSQL drafts SQL from a prompt. Low temperature keeps drafting
// deterministic.
func (c *Client) GenerateSQL(ctx context.Context, prompt, systemMessage string) (string, error) {
	return c.complete(ctx, prompt, systemMessage, 0.1)
}

// GenerateInsight produces prose for result explanation.
func (c *Client) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, "You explain SQL query results for business users in plain language.", 0.7)
}

func (c *Client) complete(ctx context.Context, prompt, systemMessage string, temperature float32) (string, error) {
	c.logger.Debug("AI request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", ClassifyError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", EmptyResultError(c.model)
	}

	c.logger.Debug("AI response",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// GenerateSQLStream streams deltas as text events, ending with a done event.
// Provider errors mid-stream surface as one error event; content already
// delivered is never retracted.
func (c *Client) GenerateSQLStream(ctx context.Context, prompt, systemMessage string) (<-chan StreamEvent, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
		Stream:      true,
	})
	if err != nil {
		return nil, ClassifyError(err)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				emit(ctx, events, StreamEvent{Type: StreamEventDone})
				return
			}
			if err != nil {
				emit(ctx, events, StreamEvent{Type: StreamEventError, Content: ClassifyError(err).Error()})
				return
			}
			if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
				if !emit(ctx, events, StreamEvent{Type: StreamEventText, Content: resp.Choices[0].Delta.Content}) {
					return
				}
			}
		}
	}()

	return events, nil
}

// emit delivers an event unless the consumer has abandoned the stream. Every
// send, terminal ones included, goes through here so a cancelled consumer
// never strands the producer goroutine.
func emit(ctx context.Context, events chan<- StreamEvent, e StreamEvent) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}
