package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/models"
	"github.com/guardrail/guardrail/internal/repository"
	"github.com/guardrail/guardrail/pkg/logger"
)

// Detector runs the detection and processing pipelines.
type Detector interface {
	Detect(ctx context.Context, text string, categories []string) (map[string]any, string)
	Process(ctx context.Context, redacted string) string
	UpdateAPIKey(key string) error
}

// RedactRequest represents the request body for a detection run.
type RedactRequest struct {
	Text       string   `json:"text"`
	Categories []string `json:"categories,omitempty"`
}

// RedactResponse represents the response for a detection run. Result carries
// either the detection fields or an "error" key; failures are part of the
// result, not transport errors.
type RedactResponse struct {
	Result       map[string]any `json:"result"`
	RedactedText string         `json:"redacted_text"`
}

// ProcessRequest represents the request body for a processing run.
type ProcessRequest struct {
	Text string `json:"text"`
}

// ProcessResponse represents the response for a processing run.
type ProcessResponse struct {
	Response string `json:"response"`
}

// APIKeyRequest represents the request body for a credential update.
type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// CategoryInfo describes one selectable category.
type CategoryInfo struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RedactHandler handles the redaction API endpoints.
type RedactHandler struct {
	service    Detector
	categories []config.Category
	history    repository.HistoryRepository
	log        *logger.Logger
}

// NewRedactHandler creates a new RedactHandler. history may be nil when no
// database is configured.
func NewRedactHandler(service Detector, categories []config.Category, history repository.HistoryRepository, log *logger.Logger) *RedactHandler {
	return &RedactHandler{
		service:    service,
		categories: categories,
		history:    history,
		log:        log,
	}
}

// Redact handles POST /api/v1/redact requests.
func (h *RedactHandler) Redact(w http.ResponseWriter, r *http.Request) {
	var req RedactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	// An omitted category list selects every configured category.
	categories := req.Categories
	if categories == nil {
		for _, c := range h.categories {
			categories = append(categories, c.Name)
		}
	}

	result, redacted := h.service.Detect(r.Context(), req.Text, categories)

	writeJSON(w, http.StatusOK, RedactResponse{
		Result:       result,
		RedactedText: redacted,
	})
}

// Process handles POST /api/v1/process requests.
func (h *RedactHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	response := h.service.Process(r.Context(), req.Text)

	writeJSON(w, http.StatusOK, ProcessResponse{Response: response})
}

// Categories handles GET /api/v1/categories requests.
func (h *RedactHandler) Categories(w http.ResponseWriter, r *http.Request) {
	infos := make([]CategoryInfo, 0, len(h.categories))
	for _, c := range h.categories {
		infos = append(infos, CategoryInfo{
			Name:        c.Name,
			Placeholder: c.Placeholder,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"categories": infos})
}

// UpdateAPIKey handles PUT /api/v1/config/apikey requests.
func (h *RedactHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := h.service.UpdateAPIKey(req.APIKey); err != nil {
		switch {
		case errors.Is(err, models.ErrEmptyAPIKey):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "API key must not be empty",
				Code:  "EMPTY_API_KEY",
			})
		case errors.Is(err, models.ErrNotConfigured):
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Error: "processing model is not configured",
				Code:  "MODEL_NOT_CONFIGURED",
			})
		default:
			h.log.Error("failed to update API key", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error: "failed to update API key",
				Code:  "INTERNAL_ERROR",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// History handles GET /api/v1/history requests.
func (h *RedactHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "history store is not configured",
			Code:  "HISTORY_UNAVAILABLE",
		})
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = n
	}

	records, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to list redaction history", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to list history",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	if records == nil {
		records = []models.RedactionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}
