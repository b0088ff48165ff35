// Package retrylimit wraps outbound platform calls with an adaptive rate
// limiter and a retry loop that backs off on rate limits and server errors.
//
//	lim := retrylimit.NewAdaptiveLimiter(retrylimit.LimiterConfig{Initial: 2, Min: 0.5, Max: 5})
//	err := retrylimit.Do(ctx, lim, retrylimit.DefaultRetryConfig(), func(ctx context.Context) error {
//	    return platform.Push(ctx)
//	})
package retrylimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig bounds an AdaptiveLimiter. Rates are requests per second.
type LimiterConfig struct {
	Initial rate.Limit
	Min     rate.Limit
	Max     rate.Limit
	// StepUp is added after a success once Calm has passed since the last
	// rate limit.
	StepUp rate.Limit
	// StepDown multiplies the rate after a rate limit.
	StepDown float64
	Calm     time.Duration
}

// DefaultLimiterConfig suits the per-route limits of chat platform APIs.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{Initial: 2, Min: 0.2, Max: 5, StepUp: 0.5, StepDown: 0.5, Calm: 10 * time.Second}
}

// AdaptiveLimiter raises its rate on success and lowers it on rate limits.
// It is safe for concurrent use.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	cfg       LimiterConfig
	limiter   *rate.Limiter
	lastLimit time.Time
	now       func() time.Time
}

func NewAdaptiveLimiter(cfg LimiterConfig) *AdaptiveLimiter {
	def := DefaultLimiterConfig()
	if cfg.Min <= 0 {
		cfg.Min = def.Min
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	if cfg.Initial <= 0 {
		cfg.Initial = cfg.Max
	}
	cfg.Initial = clamp(cfg.Initial, cfg.Min, cfg.Max)
	if cfg.StepDown <= 0 || cfg.StepDown >= 1 {
		cfg.StepDown = def.StepDown
	}
	return &AdaptiveLimiter{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.Initial, burstFor(cfg.Initial)),
		now:     time.Now,
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success records a completed request.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastLimit) > a.cfg.Calm {
		a.set(a.limiter.Limit() + a.cfg.StepUp)
	}
}

// RateLimited records a rejected request.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastLimit = a.now()
	a.set(rate.Limit(float64(a.limiter.Limit()) * a.cfg.StepDown))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limiter.Limit()
}

func (a *AdaptiveLimiter) set(l rate.Limit) {
	l = clamp(l, a.cfg.Min, a.cfg.Max)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(burstFor(l))
	}
}

func clamp(l, lo, hi rate.Limit) rate.Limit {
	return max(lo, min(l, hi))
}

func burstFor(l rate.Limit) int {
	return max(1, int(l))
}
