package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum interval between consecutive calls across all
// callers. Waiters are admitted one at a time in the order they reserve a slot.
type Throttle struct {
	interval time.Duration
	next     time.Time // earliest time the next call may start
	mu       sync.Mutex

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewThrottle creates a throttle; interval <= 0 disables it
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
		after:    time.After,
	}
}

// Interval returns the configured minimum spacing
func (t *Throttle) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval changes the minimum spacing. Slots already reserved keep their
// start times; the new spacing applies from the next reservation.
func (t *Throttle) SetInterval(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if interval <= 0 {
		interval = 0
		t.next = time.Time{}
	}
	t.interval = interval
}

// Wait blocks until the caller may issue a call. On cancellation the reserved
// slot is released only if no later caller has reserved after it.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.interval <= 0 {
		t.mu.Unlock()
		return nil
	}
	now := t.now()
	start := t.next
	if start.Before(now) {
		start = now
	}
	t.next = start.Add(t.interval)
	reserved := t.next
	t.mu.Unlock()

	delay := start.Sub(now)
	if delay <= 0 {
		return nil
	}

	select {
	case <-t.after(delay):
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		if t.next.Equal(reserved) {
			t.next = start
		}
		t.mu.Unlock()
		return ctx.Err()
	}
}
