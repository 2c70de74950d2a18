package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-memory fixed-window limiter keyed by client. It
// guards inbound HTTP traffic; the blocking WindowLimiter guards outbound
// model calls.
type MemoryLimiter struct {
	cfg     Config
	buckets sync.Map // map[string]*bucket

	done chan struct{}
	wg   sync.WaitGroup

	now func() time.Time
}

// bucket holds the window state for one client key.
type bucket struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// NewMemoryLimiter creates the limiter and starts its cleanup goroutine.
// Callers must Close it to stop the goroutine.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	m := &MemoryLimiter{
		cfg:  cfg,
		done: make(chan struct{}),
		now:  time.Now,
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

// Allow reports whether another request from key fits in its current window.
func (m *MemoryLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	now := m.now()

	val, _ := m.buckets.LoadOrStore(key, &bucket{windowStart: now})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	// The window resets lazily on the first check after it elapses.
	if now.Sub(b.windowStart) >= m.cfg.Window {
		b.count = 0
		b.windowStart = now
	}

	resetAfter := m.cfg.Window - now.Sub(b.windowStart)
	if resetAfter < 0 {
		resetAfter = 0
	}

	if b.count >= m.cfg.Requests {
		return &Result{
			ResetAfter: resetAfter,
			RetryAfter: resetAfter,
			Limit:      m.cfg.Requests,
		}, nil
	}

	b.count++

	return &Result{
		Allowed:    true,
		Remaining:  m.cfg.Requests - b.count,
		ResetAfter: resetAfter,
		Limit:      m.cfg.Requests,
	}, nil
}

// Reset forgets all state for key.
func (m *MemoryLimiter) Reset(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.buckets.Delete(key)
	return nil
}

// Close stops the cleanup goroutine.
func (m *MemoryLimiter) Close() error {
	close(m.done)
	m.wg.Wait()
	return nil
}

func (m *MemoryLimiter) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.dropExpired()
		}
	}
}

// dropExpired removes buckets whose window has fully elapsed, so idle
// clients do not accumulate forever.
func (m *MemoryLimiter) dropExpired() {
	now := m.now()

	m.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.Sub(b.windowStart) >= m.cfg.Window
		b.mu.Unlock()

		if expired {
			m.buckets.Delete(key)
		}
		return true
	})
}
