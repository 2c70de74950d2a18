package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/models"
	"github.com/guardrail/guardrail/pkg/logger"
)

// mockDetector implements Detector with canned behavior.
type mockDetector struct {
	result         map[string]any
	redacted       string
	processReply   string
	apiKeyErr      error
	lastText       string
	lastCategories []string
	lastKey        string
}

func (m *mockDetector) Detect(_ context.Context, text string, categories []string) (map[string]any, string) {
	m.lastText = text
	m.lastCategories = categories
	return m.result, m.redacted
}

func (m *mockDetector) Process(_ context.Context, redacted string) string {
	m.lastText = redacted
	return m.processReply
}

func (m *mockDetector) UpdateAPIKey(key string) error {
	if m.apiKeyErr != nil {
		return m.apiKeyErr
	}
	m.lastKey = key
	return nil
}

// mockHistory implements repository.HistoryRepository.
type mockHistory struct {
	records []models.RedactionRecord
	listErr error
	limit   int
}

func (m *mockHistory) Record(_ context.Context, rec *models.RedactionRecord) error {
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockHistory) List(_ context.Context, limit int) ([]models.RedactionRecord, error) {
	m.limit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.records, nil
}

func (m *mockHistory) HealthCheck(_ context.Context) error { return nil }

var testCategories = []config.Category{
	{Name: "Email Addresses", Placeholder: "[EMAIL-1]"},
	{Name: "Phone Numbers", Placeholder: "[PHONE-NUM-1]"},
}

func newTestHandler(detector *mockDetector, history *mockHistory) *RedactHandler {
	log := logger.New(io.Discard, "error")
	if history == nil {
		return NewRedactHandler(detector, testCategories, nil, log)
	}
	return NewRedactHandler(detector, testCategories, history, log)
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRedactHandler_Redact(t *testing.T) {
	t.Run("returns detection result", func(t *testing.T) {
		detector := &mockDetector{
			result: map[string]any{
				"detected_sensitive_data": []any{},
				"redacted_text":           "My email is [EMAIL-1]",
			},
			redacted: "My email is [EMAIL-1]",
		}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.Redact, http.MethodPost, "/api/v1/redact", RedactRequest{
			Text:       "My email is john@example.com",
			Categories: []string{"Email Addresses"},
		})

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp RedactResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "My email is [EMAIL-1]", resp.RedactedText)
		assert.Equal(t, "My email is [EMAIL-1]", resp.Result["redacted_text"])
		assert.Equal(t, []string{"Email Addresses"}, detector.lastCategories)
	})

	t.Run("omitted categories select all configured", func(t *testing.T) {
		detector := &mockDetector{result: map[string]any{}, redacted: ""}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.Redact, http.MethodPost, "/api/v1/redact", map[string]string{"text": "hello"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"Email Addresses", "Phone Numbers"}, detector.lastCategories)
	})

	t.Run("pipeline errors surface in the result with HTTP 200", func(t *testing.T) {
		detector := &mockDetector{
			result:   map[string]any{"error": "No text provided"},
			redacted: "",
		}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.Redact, http.MethodPost, "/api/v1/redact", RedactRequest{Text: ""})

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp RedactResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "No text provided", resp.Result["error"])
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		h := newTestHandler(&mockDetector{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/redact", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		h.Redact(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "INVALID_REQUEST", resp.Code)
	})
}

func TestRedactHandler_Process(t *testing.T) {
	t.Run("returns model response", func(t *testing.T) {
		detector := &mockDetector{processReply: "processed"}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.Process, http.MethodPost, "/api/v1/process", ProcessRequest{Text: "redacted text"})

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ProcessResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "processed", resp.Response)
		assert.Equal(t, "redacted text", detector.lastText)
	})

	t.Run("fail-closed messages pass through", func(t *testing.T) {
		detector := &mockDetector{processReply: "OpenAI model not available. Please configure a valid API key."}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.Process, http.MethodPost, "/api/v1/process", ProcessRequest{Text: "text"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "not available")
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		h := newTestHandler(&mockDetector{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/process", strings.NewReader("nope"))
		rec := httptest.NewRecorder()
		h.Process(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRedactHandler_Categories(t *testing.T) {
	h := newTestHandler(&mockDetector{}, nil)

	rec := doJSON(t, h.Categories, http.MethodGet, "/api/v1/categories", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Categories []CategoryInfo `json:"categories"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Categories, 2)
	assert.Equal(t, "Email Addresses", resp.Categories[0].Name)
	assert.Equal(t, "[EMAIL-1]", resp.Categories[0].Placeholder)
}

func TestRedactHandler_UpdateAPIKey(t *testing.T) {
	t.Run("updates the key", func(t *testing.T) {
		detector := &mockDetector{}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.UpdateAPIKey, http.MethodPut, "/api/v1/config/apikey", APIKeyRequest{APIKey: "sk-new"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sk-new", detector.lastKey)
	})

	t.Run("empty key is a bad request", func(t *testing.T) {
		detector := &mockDetector{apiKeyErr: models.ErrEmptyAPIKey}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.UpdateAPIKey, http.MethodPut, "/api/v1/config/apikey", APIKeyRequest{APIKey: ""})

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "EMPTY_API_KEY", resp.Code)
	})

	t.Run("unconfigured model is unavailable", func(t *testing.T) {
		detector := &mockDetector{apiKeyErr: models.ErrNotConfigured}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.UpdateAPIKey, http.MethodPut, "/api/v1/config/apikey", APIKeyRequest{APIKey: "sk-x"})

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("other errors are internal", func(t *testing.T) {
		detector := &mockDetector{apiKeyErr: errors.New("disk full")}
		h := newTestHandler(detector, nil)

		rec := doJSON(t, h.UpdateAPIKey, http.MethodPut, "/api/v1/config/apikey", APIKeyRequest{APIKey: "sk-x"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "disk full")
	})
}

func TestRedactHandler_History(t *testing.T) {
	t.Run("lists records", func(t *testing.T) {
		history := &mockHistory{records: []models.RedactionRecord{
			{
				ID:            1,
				RequestID:     "req-1",
				Categories:    []string{"Email Addresses"},
				DetectedCount: 2,
				Outcome:       models.OutcomeSuccess,
				DurationMS:    1200,
				CreatedAt:     time.Now(),
			},
		}}
		h := newTestHandler(&mockDetector{}, history)

		rec := doJSON(t, h.History, http.MethodGet, "/api/v1/history", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, history.limit)

		var resp struct {
			History []models.RedactionRecord `json:"history"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.History, 1)
		assert.Equal(t, models.OutcomeSuccess, resp.History[0].Outcome)
	})

	t.Run("honors limit parameter", func(t *testing.T) {
		history := &mockHistory{}
		h := newTestHandler(&mockDetector{}, history)

		rec := doJSON(t, h.History, http.MethodGet, "/api/v1/history?limit=5", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, history.limit)
	})

	t.Run("rejects invalid limit", func(t *testing.T) {
		h := newTestHandler(&mockDetector{}, &mockHistory{})

		rec := doJSON(t, h.History, http.MethodGet, "/api/v1/history?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doJSON(t, h.History, http.MethodGet, "/api/v1/history?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unavailable without a store", func(t *testing.T) {
		h := newTestHandler(&mockDetector{}, nil)

		rec := doJSON(t, h.History, http.MethodGet, "/api/v1/history", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("list failure is internal", func(t *testing.T) {
		history := &mockHistory{listErr: errors.New("db down")}
		h := newTestHandler(&mockDetector{}, history)

		rec := doJSON(t, h.History, http.MethodGet, "/api/v1/history", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("empty history is an empty array", func(t *testing.T) {
		h := newTestHandler(&mockDetector{}, &mockHistory{})

		rec := doJSON(t, h.History, http.MethodGet, "/api/v1/history", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"history":[]`)
	})
}

func TestUIHandler_Index(t *testing.T) {
	h, err := NewUIHandler(config.UIConfig{
		Title:       "Guardrail",
		Description: "Detect and redact sensitive information",
	})
	require.NoError(t, err)

	t.Run("serves the page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.Index(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

		body := rec.Body.String()
		assert.Contains(t, body, "Guardrail")
		assert.Contains(t, body, "/api/v1/redact")
		assert.Contains(t, body, "/api/v1/process")
		assert.Contains(t, body, "/api/v1/config/apikey")
		assert.Contains(t, body, "/api/v1/history")
	})

	t.Run("unknown paths are 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
		rec := httptest.NewRecorder()
		h.Index(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
