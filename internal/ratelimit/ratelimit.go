// Package ratelimit provides fixed-window admission counters.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Window is an in-process fixed-window limiter for single-instance deployments and tests.
type Window struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
	sweepAt time.Time
}

type bucket struct {
	count int
	reset time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (w *Window) Allow(_ context.Context, key string) (Decision, error) {
	if w.limit <= 0 || w.window <= 0 {
		return Decision{Allowed: true}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.sweep(now)

	b, ok := w.buckets[key]
	if !ok || !now.Before(b.reset) {
		b = &bucket{reset: now.Add(w.window)}
		w.buckets[key] = b
	}
	b.count++

	d := Decision{Allowed: b.count <= w.limit, Count: b.count, Limit: w.limit}
	if !d.Allowed {
		d.RetryAfter = b.reset.Sub(now)
	}
	return d, nil
}

// sweep drops expired buckets at most once per window so the map stays bounded.
func (w *Window) sweep(now time.Time) {
	if now.Before(w.sweepAt) {
		return
	}
	for k, b := range w.buckets {
		if !now.Before(b.reset) {
			delete(w.buckets, k)
		}
	}
	w.sweepAt = now.Add(w.window)
}
