// Package ratelimit implements the global byte-budget token bucket gating
// all article reads.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with a nullable limit: when
// the configured bps is zero, acquire returns immediately (spec's
// "unlimited" mode), matching the nntp manager's own gate-less fast path
// when no semaphore slot is configured.
type Limiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	bps     int64
}

// New constructs a Limiter. bps == 0 means unlimited. burst defaults to
// 2x bps when zero.
func New(bps, burst int64) *Limiter {
	l := &Limiter{}
	l.set(bps, burst)
	return l
}

func (l *Limiter) set(bps, burst int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bps = bps
	if bps <= 0 {
		l.limiter = nil
		return
	}
	if burst <= 0 {
		burst = bps * 2
	}
	l.limiter = rate.NewLimiter(rate.Limit(bps), int(burst))
}

// Update atomically replaces the bucket's parameters by swapping in a new
// limiter behind the mutex. Acquire calls that start after Update use the
// new rate immediately; a call already waiting keeps waiting on the limiter
// it started with, at the old rate.
func (l *Limiter) Update(bps, burst int64) {
	l.set(bps, burst)
}

// Acquire suspends the caller until n tokens (bytes) are available. It
// never fails except via context cancellation.
func (l *Limiter) Acquire(ctx context.Context, n int64) error {
	l.mu.RLock()
	lim := l.limiter
	l.mu.RUnlock()

	if lim == nil {
		return nil
	}
	if n <= 0 {
		return nil
	}

	burst := lim.Burst()
	for n > int64(burst) {
		if err := lim.WaitN(ctx, burst); err != nil {
			return err
		}
		n -= int64(burst)
	}
	return lim.WaitN(ctx, int(n))
}

// Unlimited reports whether the limiter currently has no cap configured.
func (l *Limiter) Unlimited() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter == nil
}
