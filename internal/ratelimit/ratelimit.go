// Package ratelimit paces outbound marketplace lookups made in bulk.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitterLimiter lets one call through every minDelay and adds a random
// extra pause of up to maxDelay-minDelay.
type JitterLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
	jitter   func(n int64) int64
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &JitterLimiter{
		limiter:  rate.NewLimiter(every(minDelay), 1),
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   rand.Int63n,
	}
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

func (r *JitterLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	extra := r.extraDelay()
	if extra <= 0 {
		return nil
	}

	timer := time.NewTimer(extra)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *JitterLimiter) extraDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	delta := r.maxDelay - r.minDelay
	if delta <= 0 {
		return 0
	}
	return time.Duration(r.jitter(int64(delta)))
}

func (r *JitterLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max < min {
		max = min
	}
	r.minDelay = min
	r.maxDelay = max
	r.limiter.SetLimit(every(min))
}

// Delays returns the current window.
func (r *JitterLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

// AdaptiveRateLimiter widens the window after repeated upstream errors and
// narrows it again after a run of successes.
type AdaptiveRateLimiter struct {
	*JitterLimiter

	mu            sync.Mutex
	floor         time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		JitterLimiter: NewJitterLimiter(minDelay, maxDelay),
		floor:         minDelay,
		maxErrorCount: 3,
		backoffFactor: 1.5,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		min, max := a.Delays()
		newMin := time.Duration(float64(min) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.SetDelay(newMin, max)
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		min, max := a.Delays()
		newMin := time.Duration(float64(min) * a.backoffFactor)
		newMax := time.Duration(float64(max) * a.backoffFactor)

		if newMin > 60*time.Second {
			newMin = 60 * time.Second
		}
		if newMax > 120*time.Second {
			newMax = 120 * time.Second
		}

		a.SetDelay(newMin, newMax)
		a.errorCount = 0
	}
}
