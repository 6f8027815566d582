package ratelimit

import (
	"sync"
	"time"
)

const (
	// WindowDuration is the sliding window size
	WindowDuration = time.Minute
)

// Limiter implements a per-requester sliding window rate limiter
type Limiter struct {
	limit   int                    // max mentions per window (0 = disabled)
	window  time.Duration          // sliding window size
	windows map[string][]time.Time // requester DID -> timestamps of accepted mentions
	now     func() time.Time
	mu      sync.Mutex
}

// New creates a new rate limiter
// limit is the maximum number of mentions per minute per requester
// limit <= 0 means rate limiting is disabled
func New(limit int) *Limiter {
	return NewWithWindow(limit, WindowDuration)
}

// NewWithWindow creates a limiter with a custom window size
func NewWithWindow(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// prune drops timestamps outside the window; caller holds mu
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	timestamps := l.windows[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	if len(valid) == 0 {
		delete(l.windows, key)
		return nil
	}
	l.windows[key] = valid
	return valid
}

// Allow checks if a mention from the given requester should be handled
// Returns true if allowed, false if rate limited
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return true
	}

	now := l.now()
	timestamps := l.prune(key, now)
	if len(timestamps) >= l.limit {
		return false
	}
	l.windows[key] = append(timestamps, now)
	return true
}

// Remaining returns how many mentions the requester has left in the current window
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return -1 // unlimited
	}

	remaining := l.limit - len(l.prune(key, l.now()))
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Sweep removes every requester whose window has fully expired
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key := range l.windows {
		if l.prune(key, now) == nil {
			removed++
		}
	}
	return removed
}

// Reset clears all rate limit data for a requester
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// ResetAll clears all rate limit data
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}

// SetLimit changes the per-window limit; existing windows are kept
func (l *Limiter) SetLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
}

// Limit returns the per-window limit
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}
