// Package ratelimit slows down credential guessing. A Limiter counts failures
// per key inside a window and locks the key out once the budget is spent.
// State lives in memory only; a restart clears it.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 15 * time.Minute
	DefaultWindow      = 5 * time.Minute
)

type Options struct {
	MaxAttempts int
	Lockout     time.Duration
	Window      time.Duration
	// Now is used instead of time.Now when set.
	Now func() time.Time
}

type record struct {
	attempts     int
	firstAttempt time.Time
	lockoutUntil time.Time
}

// Status is the result of Check.
type Status struct {
	Allowed           bool
	Locked            bool
	AttemptsRemaining int
	RetryAfterMinutes int
}

type Limiter struct {
	max     int
	lockout time.Duration
	window  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	records map[string]*record
}

func New(opts Options) *Limiter {
	l := &Limiter{
		max:     opts.MaxAttempts,
		lockout: opts.Lockout,
		window:  opts.Window,
		now:     opts.Now,
		records: make(map[string]*record),
	}
	if l.max <= 0 {
		l.max = DefaultMaxAttempts
	}
	if l.lockout <= 0 {
		l.lockout = DefaultLockout
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

func (l *Limiter) MaxAttempts() int {
	return l.max
}

// Check reports whether key may attempt authentication now. Reaching the
// attempt budget starts the lockout as a side effect.
func (l *Limiter) Check(key string) Status {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[key]
	if !ok {
		return Status{Allowed: true, AttemptsRemaining: l.max}
	}
	if !r.lockoutUntil.IsZero() && now.Before(r.lockoutUntil) {
		return Status{Locked: true, RetryAfterMinutes: ceilMinutes(r.lockoutUntil.Sub(now))}
	}
	if now.Sub(r.firstAttempt) > l.window {
		delete(l.records, key)
		return Status{Allowed: true, AttemptsRemaining: l.max}
	}
	if r.attempts >= l.max {
		r.lockoutUntil = now.Add(l.lockout)
		return Status{Locked: true, RetryAfterMinutes: ceilMinutes(l.lockout)}
	}
	return Status{Allowed: true, AttemptsRemaining: l.max - r.attempts}
}

// RecordFailure counts one failed attempt for key.
func (l *Limiter) RecordFailure(key string) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[key]
	if !ok {
		l.records[key] = &record{attempts: 1, firstAttempt: now}
		return
	}
	r.attempts++
	if r.firstAttempt.IsZero() {
		r.firstAttempt = now
	}
}

// RecordSuccess forgets key entirely.
func (l *Limiter) RecordSuccess(key string) {
	l.mu.Lock()
	delete(l.records, key)
	l.mu.Unlock()
}

func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
