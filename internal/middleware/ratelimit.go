package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/guardrail/guardrail/internal/metrics"
	"github.com/guardrail/guardrail/internal/ratelimit"
)

// RateLimitConfig controls how clients are identified for rate limiting.
type RateLimitConfig struct {
	TrustProxy     bool
	APIKeyHeader   string
	TrustedProxies []string
}

// RateLimitResponse is the body sent with a 429.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimit enforces a per-client request budget using the given limiter.
// Clients are keyed by API key when the configured header is present,
// otherwise by IP. Limiter failures fail open.
func RateLimit(limiter ratelimit.Limiter, cfg RateLimitConfig) Middleware {
	trusted := make(map[string]bool, len(cfg.TrustedProxies))
	for _, ip := range cfg.TrustedProxies {
		trusted[ip] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Allow(r.Context(), clientKey(r, cfg, trusted))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			writeRateLimitHeaders(w, result)

			if !result.Allowed {
				metrics.RecordRateLimited()
				writeRateLimited(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey picks the limiter bucket for a request. API keys and IPs get
// distinct prefixes so a key can never collide with an address.
func clientKey(r *http.Request, cfg RateLimitConfig, trusted map[string]bool) string {
	if cfg.APIKeyHeader != "" {
		if key := r.Header.Get(cfg.APIKeyHeader); key != "" {
			return "api:" + key
		}
	}

	// ClientIP middleware usually ran first; resolve from scratch if not.
	ip := GetClientIP(r.Context())
	if ip == "" {
		ip = resolveClientIP(r, cfg.TrustProxy, trusted)
	}
	return "ip:" + ip
}

func writeRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

	if result.ResetAfter > 0 {
		reset := time.Now().Add(result.ResetAfter).Unix()
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	}

	if !result.Allowed && result.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(result)))
	}
}

func writeRateLimited(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(RateLimitResponse{
		Error:      "rate limit exceeded",
		Code:       "RATE_LIMIT_EXCEEDED",
		RetryAfter: retrySeconds(result),
	})
}

// retrySeconds rounds the retry delay up to at least one second, since
// Retry-After cannot express sub-second waits.
func retrySeconds(result *ratelimit.Result) int {
	s := int(result.RetryAfter.Seconds())
	if s < 1 {
		s = 1
	}
	return s
}
