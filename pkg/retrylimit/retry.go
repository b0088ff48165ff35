package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// StatusError is implemented by errors carrying an HTTP status code.
type StatusError interface {
	error
	StatusCode() int
}

// RetryAfterError is implemented by errors that say how long to back off.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// FatalError stops the retry loop immediately.
type FatalError struct{ Err error }

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Class is how an error affects the retry loop.
type Class int

const (
	ClassRetry Class = iota
	ClassRateLimited
	ClassFatal
)

// Classifier maps an error to a Class.
type Classifier func(error) Class

// DefaultClassifier treats 429 as rate limited, other 4xx as fatal and
// everything else as retryable.
func DefaultClassifier(err error) Class {
	var fe *FatalError
	if errors.As(err, &fe) {
		return ClassFatal
	}
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return ClassRateLimited
	}
	var se StatusError
	if errors.As(err, &se) {
		switch code := se.StatusCode(); {
		case code == http.StatusTooManyRequests:
			return ClassRateLimited
		case code >= 400 && code < 500:
			return ClassFatal
		}
	}
	return ClassRetry
}

// RetryConfig tunes Do.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	Multiplier     float64
	Jitter         bool
	Classify       Classifier
	Log            zerolog.Logger
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2,
		Jitter:         true,
		Classify:       DefaultClassifier,
		Log:            zerolog.Nop(),
	}
}

// Do calls fn until it succeeds, returns a fatal error, ctx ends or attempts
// run out. lim may be nil.
func Do(ctx context.Context, lim *AdaptiveLimiter, cfg RetryConfig, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Classify == nil {
		cfg.Classify = DefaultClassifier
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}
		last = fn(ctx)
		if last == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Log.Info().Str("event", "retry.recovered").Int("attempt", attempt).Msg("call succeeded after retry")
			}
			return nil
		}

		var wait time.Duration
		switch cfg.Classify(last) {
		case ClassFatal:
			return last
		case ClassRateLimited:
			if lim != nil {
				lim.RateLimited()
			}
			wait = cfg.RateLimitDelay
			var ra RetryAfterError
			if errors.As(last, &ra) && ra.RetryAfter() > 0 {
				wait = ra.RetryAfter()
			}
			cfg.Log.Warn().Err(last).Str("event", "retry.rate_limited").Int("attempt", attempt).Dur("wait", wait).Msg("rate limited")
		default:
			wait = delay
			if cfg.Jitter {
				wait = jitter(wait)
			}
			delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
			cfg.Log.Warn().Err(last).Str("event", "retry.failed").Int("attempt", attempt).Dur("wait", wait).Msg("call failed")
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, cfg.MaxAttempts, last)
}

// jitter adds up to 25% to d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}
