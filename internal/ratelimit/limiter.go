// Package ratelimit provides rate limiting for inbound requests and
// outbound model calls.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimitExceeded is returned when the rate limit is exceeded.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Result contains the outcome of an inbound rate limit check.
type Result struct {
	Allowed    bool          // Whether the request is allowed
	Remaining  int           // Remaining requests in the current window
	ResetAfter time.Duration // Time until the current window resets
	RetryAfter time.Duration // Suggested retry time (if blocked)
	Limit      int           // The configured limit
}

// Limiter is the inbound (per identifier) rate limiting interface.
type Limiter interface {
	// Allow checks if a request from the given identifier is allowed.
	Allow(ctx context.Context, identifier string) (*Result, error)

	// Reset clears the rate limit state for an identifier.
	Reset(ctx context.Context, identifier string) error

	// Close releases any resources held by the limiter.
	Close() error
}

// Config holds inbound limiter configuration.
type Config struct {
	Requests int           // Maximum requests per window
	Window   time.Duration // Time window size
}

// DefaultConfig returns a default inbound configuration.
func DefaultConfig() Config {
	return Config{
		Requests: 120,
		Window:   time.Minute,
	}
}
