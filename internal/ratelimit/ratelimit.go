// Package ratelimit paces outbound calls to the generation API so that no two
// granted calls are closer together than a fixed minimum interval.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultCallsPerMinute is the pacing budget used when none is configured.
const DefaultCallsPerMinute = 10

// Jitter bounds added on top of any required wait.
const (
	minJitter = 100 * time.Millisecond
	maxJitter = 500 * time.Millisecond
)

// Limiter enforces a minimum interval between granted calls. It is safe for
// concurrent use: the lock is held across the wait, so pacing is global
// across goroutines and waiters are released one at a time.
type Limiter struct {
	// mu serialises Acquire calls.
	mu sync.Mutex
	// interval is the minimum gap between two granted calls.
	interval time.Duration
	// last is when the previous call was granted; zero before the first.
	last time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the sleep function. It must return ctx.Err() if ctx is
// done before d elapses.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithJitter replaces the jitter source.
func WithJitter(jitter func() time.Duration) Option {
	return func(l *Limiter) { l.jitter = jitter }
}

// New returns a Limiter allowing at most callsPerMinute calls per minute.
// Non-positive values fall back to DefaultCallsPerMinute.
func New(callsPerMinute int, opts ...Option) *Limiter {
	if callsPerMinute <= 0 {
		callsPerMinute = DefaultCallsPerMinute
	}
	l := &Limiter{
		interval: time.Minute / time.Duration(callsPerMinute),
		now:      time.Now,
		sleep:    Sleep,
		jitter:   uniformJitter,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interval returns the minimum gap enforced between calls.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Acquire blocks until a call may be made, then records the grant time.
// It returns ctx.Err() if ctx is cancelled while waiting; the grant time is
// left unchanged in that case.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !l.last.IsZero() {
		if elapsed := l.now().Sub(l.last); elapsed < l.interval {
			wait := l.interval - elapsed + l.jitter()
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.last = l.now()
	return nil
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// uniformJitter returns a duration in [minJitter, maxJitter).
func uniformJitter() time.Duration {
	return minJitter + rand.N(maxJitter-minJitter)
}
