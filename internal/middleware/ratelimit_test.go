package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardrail/guardrail/internal/ratelimit"
)

// stubLimiter returns canned results and records the keys it was asked about.
type stubLimiter struct {
	result *ratelimit.Result
	err    error
	keys   []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (*ratelimit.Result, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

func (s *stubLimiter) Reset(ctx context.Context, key string) error { return nil }
func (s *stubLimiter) Close() error                                { return nil }

func allowedResult() *ratelimit.Result {
	return &ratelimit.Result{Allowed: true, Remaining: 9, ResetAfter: 30 * time.Second, Limit: 10}
}

func blockedResult() *ratelimit.Result {
	return &ratelimit.Result{Allowed: false, ResetAfter: 45 * time.Second, RetryAfter: 45 * time.Second, Limit: 10}
}

func serveRateLimited(limiter ratelimit.Limiter, cfg RateLimitConfig, mutate func(*http.Request)) *httptest.ResponseRecorder {
	var handled bool
	handler := RateLimit(limiter, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	_ = handled
	return rec
}

func TestRateLimit_Allowed(t *testing.T) {
	limiter := &stubLimiter{result: allowedResult()}

	rec := serveRateLimited(limiter, RateLimitConfig{}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimit_Blocked(t *testing.T) {
	limiter := &stubLimiter{result: blockedResult()}

	rec := serveRateLimited(limiter, RateLimitConfig{}, nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "45", rec.Header().Get("Retry-After"))

	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Code)
	assert.Equal(t, 45, body.RetryAfter)
}

func TestRateLimit_SubSecondRetryRoundsUp(t *testing.T) {
	limiter := &stubLimiter{result: &ratelimit.Result{
		Allowed:    false,
		ResetAfter: 200 * time.Millisecond,
		RetryAfter: 200 * time.Millisecond,
		Limit:      10,
	}}

	rec := serveRateLimited(limiter, RateLimitConfig{}, nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("backend down")}

	rec := serveRateLimited(limiter, RateLimitConfig{}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_ClientKeys(t *testing.T) {
	t.Run("keys by IP by default", func(t *testing.T) {
		limiter := &stubLimiter{result: allowedResult()}
		serveRateLimited(limiter, RateLimitConfig{}, nil)

		require.Len(t, limiter.keys, 1)
		assert.Equal(t, "ip:203.0.113.7", limiter.keys[0])
	})

	t.Run("prefers API key when header configured", func(t *testing.T) {
		limiter := &stubLimiter{result: allowedResult()}
		serveRateLimited(limiter, RateLimitConfig{APIKeyHeader: "X-API-Key"}, func(r *http.Request) {
			r.Header.Set("X-API-Key", "secret-1")
		})

		require.Len(t, limiter.keys, 1)
		assert.Equal(t, "api:secret-1", limiter.keys[0])
	})

	t.Run("falls back to IP when API key header absent", func(t *testing.T) {
		limiter := &stubLimiter{result: allowedResult()}
		serveRateLimited(limiter, RateLimitConfig{APIKeyHeader: "X-API-Key"}, nil)

		require.Len(t, limiter.keys, 1)
		assert.Equal(t, "ip:203.0.113.7", limiter.keys[0])
	})

	t.Run("uses IP resolved by ClientIP middleware", func(t *testing.T) {
		limiter := &stubLimiter{result: allowedResult()}

		handler := New(
			ClientIP(true, nil),
			RateLimit(limiter, RateLimitConfig{TrustProxy: true}),
		).ThenFunc(func(w http.ResponseWriter, r *http.Request) {})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set(headerForwardedFor, "198.51.100.1")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.Len(t, limiter.keys, 1)
		assert.Equal(t, "ip:198.51.100.1", limiter.keys[0])
	})
}

func TestRateLimit_EndToEnd(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Requests: 2, Window: time.Minute})
	defer limiter.Close()

	handler := RateLimit(limiter, RateLimitConfig{})(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
