package middleware

import (
	"net/http"
	"time"

	"github.com/guardrail/guardrail/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics returns a middleware that records Prometheus metrics.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			path := normalizePath(r.URL.Path)
			metrics.RecordRequest(r.Method, path, rw.statusCode, duration)
		})
	}
}

// normalizePath normalizes the URL path for metrics labels.
// This prevents high cardinality from arbitrary request paths.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/metrics":
		return path
	case "/api/v1/redact",
		"/api/v1/process",
		"/api/v1/categories",
		"/api/v1/config/apikey",
		"/api/v1/history":
		return path
	default:
		return "/other"
	}
}
