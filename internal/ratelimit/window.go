package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// Window is a fixed-window request counter used to cap request volume per
// client on public endpoints. Unlike Limiter it counts every request, not
// only failures.
type Window struct {
	max int
	win time.Duration
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
}

func NewWindow(max int, window time.Duration) *Window {
	return &Window{
		max:     max,
		win:     window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow counts one request for key and reports whether it fits the window,
// plus how long until the window resets when it does not.
func (w *Window) Allow(key string) (bool, time.Duration) {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	if w.calls%256 == 0 {
		w.prune(now)
	}

	b := w.buckets[key]
	if b == nil || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(w.win)}
		w.buckets[key] = b
	}
	b.count++
	if b.count <= w.max {
		return true, 0
	}
	return false, b.resetAt.Sub(now)
}

func (w *Window) prune(now time.Time) {
	for key, b := range w.buckets {
		if now.After(b.resetAt) {
			delete(w.buckets, key)
		}
	}
}
