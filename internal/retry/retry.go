// Package retry executes calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNoAttempts is returned when a policy allows zero attempts. The wrapped
// call is never invoked in that case.
var ErrNoAttempts = errors.New("retry: no attempts configured")

// Policy configures retry behavior. It is a value object: construct once,
// pass by value, never mutate.
type Policy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
	Multiplier  float64

	// OnRetry, if set, is called before each backoff sleep with the attempt
	// number that just failed, its error, and the upcoming wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns the standard policy for model calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MinWait:     2 * time.Second,
		MaxWait:     10 * time.Second,
		Multiplier:  2,
	}
}

// Wait returns the backoff duration after the given failed attempt
// (1-based): min(MaxWait, MinWait * Multiplier^(attempt-1)).
func (p Policy) Wait(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	wait := time.Duration(float64(p.MinWait) * math.Pow(multiplier, float64(attempt-1)))
	if wait > p.MaxWait || wait < 0 {
		wait = p.MaxWait
	}
	if wait < p.MinWait {
		wait = p.MinWait
	}
	return wait
}

// Do executes fn, retrying on any error up to p.MaxAttempts invocations.
// The first attempt runs immediately; each retry is preceded by an
// exponential backoff sleep capped at p.MaxWait. After the final failed
// attempt the last error is returned unmodified. A MaxAttempts of zero or
// less never invokes fn and returns ErrNoAttempts.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if p.MaxAttempts <= 0 {
		return zero, ErrNoAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// WithFallback executes fn exactly once and returns fallback on any error
// instead of propagating it. onError, if set, receives the swallowed error.
func WithFallback[T any](ctx context.Context, fn func(context.Context) (T, error), fallback T, onError func(error)) T {
	result, err := fn(ctx)
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return fallback
	}
	return result
}

// sleep blocks for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
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
