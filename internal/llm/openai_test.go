package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/models"
)

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewOpenAIClient(config.OpenAIConfig{
		Name:        "gpt-3.5-turbo",
		Temperature: 0.7,
		MaxTokens:   2000,
	}, "sk-test")
	client.SetBaseURL(srv.URL + "/v1")
	return client
}

func chatResponse(content string, totalTokens int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-3.5-turbo",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": totalTokens - 10,
			"total_tokens":      totalTokens,
		},
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	t.Run("returns content and token usage", func(t *testing.T) {
		client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-3.5-turbo", req["model"])

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatResponse("summarized text", 42))
		})

		out, err := client.Complete(context.Background(), "summarize this")
		require.NoError(t, err)
		assert.Equal(t, "summarized text", out.Content)
		assert.Equal(t, 42, out.TotalTokens)
	})

	t.Run("empty choices yield empty content", func(t *testing.T) {
		client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-test",
				"object":  "chat.completion",
				"model":   "gpt-3.5-turbo",
				"choices": []any{},
				"usage":   map[string]any{"total_tokens": 5},
			})
		})

		out, err := client.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Empty(t, out.Content)
		assert.Equal(t, 5, out.TotalTokens)
	})

	t.Run("API error surfaces", func(t *testing.T) {
		client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message": "Incorrect API key provided",
					"type":    "invalid_request_error",
				},
			})
		})

		_, err := client.Complete(context.Background(), "prompt")
		assert.Error(t, err)
	})

	t.Run("missing key returns not configured", func(t *testing.T) {
		client := NewOpenAIClient(config.OpenAIConfig{Name: "gpt-3.5-turbo"}, "")

		_, err := client.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, models.ErrNotConfigured)
	})
}

func TestOpenAIClient_SetAPIKey(t *testing.T) {
	t.Run("empty key rejected", func(t *testing.T) {
		client := NewOpenAIClient(config.OpenAIConfig{Name: "gpt-3.5-turbo"}, "")
		assert.ErrorIs(t, client.SetAPIKey(""), models.ErrEmptyAPIKey)
		assert.False(t, client.Configured())
	})

	t.Run("key enables the client", func(t *testing.T) {
		client := NewOpenAIClient(config.OpenAIConfig{Name: "gpt-3.5-turbo"}, "")
		require.NoError(t, client.SetAPIKey("sk-new"))
		assert.True(t, client.Configured())
	})
}
