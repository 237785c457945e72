package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Memory is the in-process limiter. State does not survive a restart, which
// resets all counters — acceptable for this defense.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	maxFailures int
	window      time.Duration
	now         func() time.Time

	ops int
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory constructs an in-process limiter. Non-positive arguments fall
// back to the defaults.
func NewMemory(maxFailures int, window time.Duration, opts ...MemoryOption) *Memory {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Memory{
		buckets:     make(map[string]*bucket),
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Limiter = (*Memory)(nil)

// Allow denies while the key is blocked and resets stale windows.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.maybePurge(now)

	b, ok := m.buckets[key]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	if now.Before(b.blockedUntil) {
		return Decision{Allowed: false, RetryAfter: b.blockedUntil.Sub(now)}, nil
	}
	if now.Sub(b.windowStart) >= m.window {
		delete(m.buckets, key)
	}
	return Decision{Allowed: true}, nil
}

// RecordFailure counts a failed attempt within the current window.
func (m *Memory) RecordFailure(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.Sub(b.windowStart) >= m.window {
		b = &bucket{windowStart: now}
		m.buckets[key] = b
	}
	b.count++
	if b.count >= m.maxFailures {
		b.blockedUntil = now.Add(m.window)
	}
	return nil
}

// RecordSuccess clears the key entirely.
func (m *Memory) RecordSuccess(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
	return nil
}

// maybePurge drops expired buckets every so often to bound the map. Caller
// holds the lock.
func (m *Memory) maybePurge(now time.Time) {
	m.ops++
	if m.ops%1024 != 0 {
		return
	}
	for key, b := range m.buckets {
		if now.Sub(b.windowStart) >= m.window && !now.Before(b.blockedUntil) {
			delete(m.buckets, key)
		}
	}
}
