// Package ratelimit throttles outbound requests with a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 10
	DefaultWindow      = 60 * time.Second
)

// Clock abstracts time so tests can drive the limiter without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter grants at most max acquisitions within any rolling window.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	clock  Clock
	grants []time.Time
}

type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New returns a limiter. Non-positive arguments fall back to the defaults.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{max: max, window: window, clock: realClock{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until another request fits in the window, then records it.
// It only fails when ctx is done while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.evict(now)
		if len(l.grants) < l.max {
			l.grants = append(l.grants, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(l.grants[0])
		l.mu.Unlock()

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Available returns how many acquisitions would succeed right now without waiting.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.clock.Now())
	return l.max - len(l.grants)
}

// evict drops grants that have aged out of the window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	i := 0
	for i < len(l.grants) && now.Sub(l.grants[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}
