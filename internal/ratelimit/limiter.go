// Package ratelimit implements fixed-window request limits keyed by client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most Max requests per key in each Window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps window counters in process memory.
type MemoryLimiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*window
	calls    int
}

// NewMemoryLimiter builds a MemoryLimiter. now may be nil.
func NewMemoryLimiter(windowSize time.Duration, max int, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		window:   windowSize,
		max:      max,
		now:      now,
		counters: make(map[string]*window),
	}
}

// Allow counts a request for key. Rejected requests do not extend the window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%1024 == 0 {
		l.sweep(now)
	}

	w, ok := l.counters[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.counters[key] = w
	}

	if w.count >= l.max {
		return Decision{Allowed: false, RetryAfter: w.start.Add(l.window).Sub(now)}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: l.max - w.count}, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for key, w := range l.counters {
		if now.Sub(w.start) >= l.window {
			delete(l.counters, key)
		}
	}
}
