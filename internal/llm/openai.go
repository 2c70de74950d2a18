package llm

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/models"
)

// OpenAIClient runs chat completions against the processing model. The
// API key can be swapped at runtime, so the underlying client is rebuilt
// under a lock on every update.
type OpenAIClient struct {
	mu      sync.RWMutex
	client  *openai.Client
	apiKey  string
	baseURL string

	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient creates a client for the configured processing model.
// An empty apiKey leaves the client unconfigured; Complete fails with
// models.ErrNotConfigured until a key is set.
func NewOpenAIClient(cfg config.OpenAIConfig, apiKey string) *OpenAIClient {
	c := &OpenAIClient{
		model:       cfg.Name,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	if apiKey != "" {
		c.setKey(apiKey)
	}
	return c
}

// SetAPIKey replaces the API key and rebuilds the underlying client.
func (c *OpenAIClient) SetAPIKey(apiKey string) error {
	if apiKey == "" {
		return models.ErrEmptyAPIKey
	}
	c.setKey(apiKey)
	return nil
}

func (c *OpenAIClient) setKey(apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	c.apiKey = apiKey
	c.client = openai.NewClientWithConfig(cfg)
}

// SetBaseURL points the client at an alternative API endpoint. Used by
// tests and OpenAI-compatible gateways.
func (c *OpenAIClient) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = baseURL
	key := c.apiKey
	c.mu.Unlock()

	if key != "" {
		c.setKey(key)
	}
}

// Configured reports whether an API key has been set.
func (c *OpenAIClient) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// Complete sends prompt as a single user message and returns the reply
// content with the total token usage reported by the API.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (*Completion, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		return nil, models.ErrNotConfigured
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return &Completion{TotalTokens: resp.Usage.TotalTokens}, nil
	}

	return &Completion{
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}
