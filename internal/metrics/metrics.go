// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// DetectionsTotal counts detection runs by outcome.
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_total",
			Help: "Total number of detection runs by outcome",
		},
		[]string{"outcome"},
	)

	// ModelCallDuration measures model call latency by backend.
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_call_duration_seconds",
			Help:    "Language model call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	// ModelRetriesTotal counts retried model calls by backend.
	ModelRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_retries_total",
			Help: "Total number of retried model calls",
		},
		[]string{"backend"},
	)

	// LimiterWaitDuration measures time spent waiting on the outbound window.
	LimiterWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "limiter_wait_duration_seconds",
			Help:    "Time spent waiting for outbound rate limit capacity",
			Buckets: []float64{.001, .01, .1, 1, 5, 15, 30, 60},
		},
	)

	// TokensConsumedTotal counts tokens reported by the processing model.
	TokensConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokens_consumed_total",
			Help: "Total tokens consumed by model calls",
		},
	)

	// CacheHitsTotal counts detection cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMissesTotal counts detection cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// DBQueryDuration measures database query latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RateLimitedTotal counts rate-limited HTTP requests.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of rate-limited requests",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDetection records a detection run with its outcome.
func RecordDetection(outcome string) {
	DetectionsTotal.WithLabelValues(outcome).Inc()
}

// RecordModelCall records a model call duration for a backend.
func RecordModelCall(backend string, duration time.Duration) {
	ModelCallDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordModelRetry records a retried model call.
func RecordModelRetry(backend string) {
	ModelRetriesTotal.WithLabelValues(backend).Inc()
}

// RecordLimiterWait records time spent waiting on the outbound limiter.
func RecordLimiterWait(duration time.Duration) {
	LimiterWaitDuration.Observe(duration.Seconds())
}

// RecordTokens records tokens consumed by a model call.
func RecordTokens(n int) {
	if n > 0 {
		TokensConsumedTotal.Add(float64(n))
	}
}

// RecordCacheHit records a cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRateLimited records a rate-limited request.
func RecordRateLimited() {
	RateLimitedTotal.Inc()
}
