package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowConfig holds outbound limiter configuration.
type WindowConfig struct {
	MaxRequestsPerMinute int
	MaxTokensPerMinute   int
}

// DefaultWindowConfig returns the default outbound ceilings.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxRequestsPerMinute: 60,
		MaxTokensPerMinute:   90000,
	}
}

// WindowLimiter bounds outbound model calls to a request and token ceiling
// per 60-second window. The window is lazy: counters reset on the first
// check after the window elapses, so window boundaries drift with usage
// rather than aligning to wall-clock minutes. This is deliberate; callers
// depend on the drifting semantics.
//
// One WindowLimiter instance is shared by every outbound call site in the
// process; all counter access is mutex-guarded.
type WindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	maxTokens   int
	window      time.Duration
	requests    int
	tokens      int
	windowStart time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewWindowLimiter creates a limiter with a 60-second accounting window.
func NewWindowLimiter(cfg WindowConfig) *WindowLimiter {
	l := &WindowLimiter{
		maxRequests: cfg.MaxRequestsPerMinute,
		maxTokens:   cfg.MaxTokensPerMinute,
		window:      time.Minute,
		now:         time.Now,
		sleep:       sleepContext,
	}
	l.windowStart = l.now()
	return l
}

// resetIfNeeded zeroes the counters and restarts the window once it has
// elapsed. Callers must hold l.mu.
func (l *WindowLimiter) resetIfNeeded() {
	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.requests = 0
		l.tokens = 0
		l.windowStart = now
	}
}

// CheckRequest reports whether another request fits in the current window.
// A zero request ceiling never admits a request.
func (l *WindowLimiter) CheckRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfNeeded()
	return l.requests < l.maxRequests
}

// CheckTokens reports whether a request carrying n tokens fits in the
// current window.
func (l *WindowLimiter) CheckTokens(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfNeeded()
	return l.tokens+n <= l.maxTokens
}

// Record counts one completed request and its token usage. No capacity
// check is performed; callers check before recording.
func (l *WindowLimiter) Record(tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requests++
	l.tokens += tokens
}

// Wait blocks until the current window admits another request, or until
// ctx is canceled. When the window is exhausted it sleeps for the remainder
// of the window and resets.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	l.resetIfNeeded()
	exhausted := l.requests >= l.maxRequests
	remaining := l.window - l.now().Sub(l.windowStart)
	l.mu.Unlock()

	if !exhausted {
		return nil
	}

	if err := l.sleep(ctx, remaining); err != nil {
		return err
	}

	l.mu.Lock()
	l.resetIfNeeded()
	l.mu.Unlock()
	return nil
}

// Do waits for request capacity, invokes call, and records one request on
// success. A failed call does not consume quota.
func (l *WindowLimiter) Do(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	if err := l.Wait(ctx); err != nil {
		return "", err
	}

	result, err := call(ctx)
	if err != nil {
		return "", err
	}

	l.Record(0)
	return result, nil
}

// Usage returns the request and token counts recorded in the current window.
func (l *WindowLimiter) Usage() (requests, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfNeeded()
	return l.requests, l.tokens
}

// sleepContext blocks for d or until ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
