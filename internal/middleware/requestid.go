package middleware

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Header names recognized by the identity middlewares.
const (
	headerRequestID    = "X-Request-ID"
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// Incoming request IDs are kept only if they look safe to echo and log.
const maxRequestIDLen = 128

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)

// RequestID tags every request with an ID, generating a UUID when the
// client did not send a usable X-Request-ID. The ID is echoed in the
// response header and stored in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerRequestID)
			if !usableRequestID(id) {
				id = uuid.New().String()
			}

			w.Header().Set(headerRequestID, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

func usableRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestIDLen && requestIDPattern.MatchString(id)
}

// ClientIP resolves the client address and stores it in the request
// context. With trustProxy set it honors X-Forwarded-For and X-Real-IP;
// a non-empty trustedProxies list restricts that to connections arriving
// from one of the listed addresses.
func ClientIP(trustProxy bool, trustedProxies []string) Middleware {
	trusted := make(map[string]bool, len(trustedProxies))
	for _, ip := range trustedProxies {
		trusted[ip] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustProxy, trusted)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trustProxy bool, trusted map[string]bool) string {
	peer := stripPort(r.RemoteAddr)

	if !trustProxy {
		return peer
	}
	if len(trusted) > 0 && !trusted[peer] {
		return peer
	}

	// Leftmost X-Forwarded-For entry is the original client.
	if xff := r.Header.Get(headerForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if real := strings.TrimSpace(r.Header.Get(headerRealIP)); real != "" {
		return real
	}

	return peer
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
