// Package ratelimit bounds outbound calls to the remote file API with a
// sliding window, blocking callers once the window is saturated.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiter allows at most max acquisitions within any rolling window.
// Acquire blocks the calling goroutine until a slot frees up; waiters queue
// on the internal mutex, so exactly one caller mutates the window at a time.
type Limiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	max        int
	window     time.Duration

	now func() time.Time
}

// NewLimiter creates a Limiter allowing max acquisitions per window.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Acquire blocks until a slot is available within the configured budget,
// then records the call. It returns early with the context error if the
// caller is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.timestamps) >= l.max {
		wait := l.window - now.Sub(l.timestamps[0])
		if wait > 0 {
			log.Debug().Dur("wait", wait).Msg("rate limit reached, waiting")
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		// The oldest slot has now aged out of the window.
		l.timestamps = l.timestamps[1:]
	}

	l.timestamps = append(l.timestamps, l.now())
	return nil
}

// Pending returns the number of acquisitions currently inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.timestamps)
}

// prune drops timestamps that have fallen out of the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.timestamps[:0]
	for _, t := range l.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.timestamps = kept
}
