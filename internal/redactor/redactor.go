// Package redactor orchestrates sensitive-data detection and downstream
// processing of redacted text.
package redactor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/guardrail/guardrail/internal/cache"
	"github.com/guardrail/guardrail/internal/credentials"
	"github.com/guardrail/guardrail/internal/llm"
	"github.com/guardrail/guardrail/internal/metrics"
	"github.com/guardrail/guardrail/internal/middleware"
	"github.com/guardrail/guardrail/internal/models"
	"github.com/guardrail/guardrail/internal/prompt"
	"github.com/guardrail/guardrail/internal/ratelimit"
	"github.com/guardrail/guardrail/internal/repository"
	"github.com/guardrail/guardrail/internal/retry"
	"github.com/guardrail/guardrail/pkg/logger"
)

// User-facing messages for failure paths. Detection failures surface as an
// "error" key in the result object; processing failures surface as a plain
// string. Neither path raises to the caller.
const (
	msgNoText           = "No text provided"
	msgNoCategories     = "No categories selected"
	msgNoProcessText    = "No text provided for processing."
	msgModelUnavailable = "OpenAI model not available. Please configure a valid API key."
	msgNoContent        = "No response content available."
)

// Completer is the processing-model dependency. *llm.OpenAIClient satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (*llm.Completion, error)
	SetAPIKey(apiKey string) error
	Configured() bool
}

// Options wires the orchestrator's collaborators. Limiter, Generator, and
// Logger are required; Completer, Cache, History, and Credentials are
// optional and disable their feature when nil.
type Options struct {
	Logger      *logger.Logger
	Limiter     *ratelimit.WindowLimiter
	Policy      retry.Policy
	Generator   llm.Generator
	Completer   Completer
	Cache       cache.DetectionCacher
	History     repository.HistoryRepository
	Credentials *credentials.Store

	CategoryMap           map[string]string
	InstructionPrefix     string
	SanitizeErrorMessages bool
	LogSensitiveData      bool
}

// Service runs the detection and processing pipelines. All failure paths
// produce displayable results; neither pipeline returns an error to the
// caller.
type Service struct {
	log         *logger.Logger
	limiter     *ratelimit.WindowLimiter
	policy      retry.Policy
	generator   llm.Generator
	completer   Completer
	cache       cache.DetectionCacher
	history     repository.HistoryRepository
	credentials *credentials.Store

	categoryMap       map[string]string
	instructionPrefix string
	sanitizeErrors    bool
	logSensitiveData  bool
}

// New creates the orchestrator service.
func New(opts Options) *Service {
	prefix := opts.InstructionPrefix
	if prefix == "" {
		prefix = "The following text has been redacted for sensitive information. Please process the text as it is provided as a PROMPT:\n"
	}

	return &Service{
		log:               opts.Logger,
		limiter:           opts.Limiter,
		policy:            opts.Policy,
		generator:         opts.Generator,
		completer:         opts.Completer,
		cache:             opts.Cache,
		history:           opts.History,
		credentials:       opts.Credentials,
		categoryMap:       opts.CategoryMap,
		instructionPrefix: prefix,
		sanitizeErrors:    opts.SanitizeErrorMessages,
		logSensitiveData:  opts.LogSensitiveData,
	}
}

// Detect runs sensitive-data detection on text for the selected categories.
// It returns the detection result object and the redacted text. Failures are
// reported through an "error" key in the result object.
func (s *Service) Detect(ctx context.Context, text string, categories []string) (map[string]any, string) {
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		return map[string]any{"error": msgNoText}, ""
	}
	if len(categories) == 0 {
		return map[string]any{"error": msgNoCategories}, text
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, text, categories); err == nil {
			metrics.RecordCacheHit()
			metrics.RecordDetection(models.OutcomeCacheHit)
			s.log.Debug("detection cache hit", "categories", len(categories))
			return resultToMap(cached), cached.RedactedText
		}
		metrics.RecordCacheMiss()
	}

	promptText, err := prompt.Build(text, categories, s.categoryMap)
	if err != nil {
		s.log.Error("failed to build detection prompt", "error", err)
		return s.callError(err), ""
	}

	raw, err := s.limiter.Do(ctx, func(ctx context.Context) (string, error) {
		return retry.Do(ctx, s.withRetryLogging("ollama"), func(ctx context.Context) (string, error) {
			callStart := time.Now()
			out, genErr := s.generator.Generate(ctx, promptText)
			metrics.RecordModelCall("ollama", time.Since(callStart))
			return out, genErr
		})
	})
	if err != nil {
		s.log.Error("detection call failed", "error", err)
		s.recordHistory(ctx, categories, 0, models.OutcomeCallError, start)
		metrics.RecordDetection(models.OutcomeCallError)
		return s.callError(err), ""
	}

	result, parseErr := parseDetection(raw)
	if parseErr != nil {
		s.log.Warn("model output is not valid detection JSON", "error", parseErr)
		s.recordHistory(ctx, categories, 0, models.OutcomeParseError, start)
		metrics.RecordDetection(models.OutcomeParseError)
		return s.parseError(raw), ""
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, text, categories, result); err != nil {
			s.log.Warn("failed to cache detection result", "error", err)
		}
	}

	s.recordHistory(ctx, categories, len(result.Detected), models.OutcomeSuccess, start)
	metrics.RecordDetection(models.OutcomeSuccess)

	if s.logSensitiveData {
		s.log.Debug("detection complete", "detected", len(result.Detected), "redacted_text", result.RedactedText)
	} else {
		s.log.Info("detection complete", "detected", len(result.Detected), "duration_ms", time.Since(start).Milliseconds())
	}

	return resultToMap(result), result.RedactedText
}

// Process submits previously redacted text to the processing model and
// returns its textual reply. It fails closed: every failure path returns a
// descriptive string.
func (s *Service) Process(ctx context.Context, redacted string) string {
	if strings.TrimSpace(redacted) == "" {
		return msgNoProcessText
	}
	if s.completer == nil || !s.completer.Configured() {
		return msgModelUnavailable
	}

	waitStart := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		s.log.Warn("rate limit wait aborted", "error", err)
		return s.processError(err)
	}
	metrics.RecordLimiterWait(time.Since(waitStart))

	completion, err := retry.Do(ctx, s.withRetryLogging("openai"), func(ctx context.Context) (*llm.Completion, error) {
		callStart := time.Now()
		out, callErr := s.completer.Complete(ctx, s.instructionPrefix+redacted)
		metrics.RecordModelCall("openai", time.Since(callStart))
		return out, callErr
	})
	if err != nil {
		s.log.Error("processing call failed", "error", err)
		return s.processError(err)
	}

	s.limiter.Record(completion.TotalTokens)
	metrics.RecordTokens(completion.TotalTokens)

	if completion.Content == "" {
		return msgNoContent
	}

	s.log.Info("processing complete", "tokens", completion.TotalTokens)
	return completion.Content
}

// UpdateAPIKey persists a new processing-model API key and applies it to the
// live client.
func (s *Service) UpdateAPIKey(key string) error {
	if s.completer == nil {
		return models.ErrNotConfigured
	}
	if err := s.completer.SetAPIKey(key); err != nil {
		return err
	}
	if s.credentials != nil {
		if err := s.credentials.SetOpenAIKey(key); err != nil {
			return err
		}
	}

	s.log.Info("API key updated", "key", credentials.Mask(key))
	return nil
}

// withRetryLogging returns the retry policy with an OnRetry hook that logs
// and counts each retried attempt for the given backend.
func (s *Service) withRetryLogging(backend string) retry.Policy {
	p := s.policy
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.RecordModelRetry(backend)
		s.log.Warn("retrying model call",
			"backend", backend, "attempt", attempt, "wait", wait.String(), "error", err)
	}
	return p
}

// callError converts a failed model call into a displayable error object.
func (s *Service) callError(err error) map[string]any {
	if s.sanitizeErrors {
		return map[string]any{"error": "Error calling the detection model"}
	}
	return map[string]any{"error": fmt.Sprintf("Error calling the detection model: %v", err)}
}

// parseError converts unparseable model output into a displayable error
// object, optionally carrying the raw output when detailed errors are
// enabled.
func (s *Service) parseError(raw string) map[string]any {
	result := map[string]any{"error": "Model response is not valid JSON"}
	if !s.sanitizeErrors {
		result["raw_output"] = raw
	}
	return result
}

// processError converts a failed processing call into a displayable string.
func (s *Service) processError(err error) string {
	if s.sanitizeErrors {
		return "Error processing text with the OpenAI model."
	}
	return fmt.Sprintf("Error processing text with the OpenAI model: %v", err)
}

// recordHistory writes an audit entry when a history store is configured.
// Only metadata is recorded.
func (s *Service) recordHistory(ctx context.Context, categories []string, detected int, outcome string, start time.Time) {
	if s.history == nil {
		return
	}

	rec := &models.RedactionRecord{
		RequestID:     middleware.GetRequestID(ctx),
		Categories:    categories,
		DetectedCount: detected,
		Outcome:       outcome,
		DurationMS:    time.Since(start).Milliseconds(),
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.log.Warn("failed to record redaction history", "error", err)
	}
}

// parseDetection parses raw model output into a detection result. Both
// top-level fields must be present. Models frequently wrap JSON in markdown
// fences; those are stripped first.
func parseDetection(raw string) (*models.DetectionResult, error) {
	cleaned := stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := fields["detected_sensitive_data"]; !ok {
		return nil, fmt.Errorf("missing detected_sensitive_data field")
	}
	if _, ok := fields["redacted_text"]; !ok {
		return nil, fmt.Errorf("missing redacted_text field")
	}

	var result models.DetectionResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("invalid detection structure: %w", err)
	}

	return &result, nil
}

// stripFences removes a surrounding markdown code fence from model output.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// resultToMap renders a detection result in its wire form.
func resultToMap(result *models.DetectionResult) map[string]any {
	detected := result.Detected
	if detected == nil {
		detected = []models.DetectedItem{}
	}
	return map[string]any{
		"detected_sensitive_data": detected,
		"redacted_text":           result.RedactedText,
	}
}
