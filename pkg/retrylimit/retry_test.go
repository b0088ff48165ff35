package retrylimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type statusErr int

func (s statusErr) Error() string   { return http.StatusText(int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

type retryAfterErr time.Duration

func (r retryAfterErr) Error() string             { return "slow down" }
func (r retryAfterErr) RetryAfter() time.Duration { return time.Duration(r) }

func fastConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return statusErr(http.StatusBadGateway)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_FatalStopsImmediately(t *testing.T) {
	for _, err := range []error{Fatal(errors.New("bad payload")), statusErr(http.StatusBadRequest)} {
		calls := 0
		got := Do(context.Background(), nil, fastConfig(), func(context.Context) error {
			calls++
			return err
		})
		assert.ErrorIs(t, got, err)
		assert.Equal(t, 1, calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), nil, cfg, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_RateLimitSlowsLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(LimiterConfig{Initial: 100, Min: 1, Max: 100, StepDown: 0.5})
	calls := 0
	err := Do(context.Background(), lim, fastConfig(), func(context.Context) error {
		calls++
		if calls == 1 {
			return retryAfterErr(time.Millisecond)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, rate.Limit(50), lim.Limit())
}

func TestDo_ContextCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	err := Do(ctx, nil, cfg, func(context.Context) error {
		cancel()
		return errors.New("flaky")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultClassifier(t *testing.T) {
	assert.Equal(t, ClassRateLimited, DefaultClassifier(statusErr(http.StatusTooManyRequests)))
	assert.Equal(t, ClassFatal, DefaultClassifier(statusErr(http.StatusForbidden)))
	assert.Equal(t, ClassRetry, DefaultClassifier(statusErr(http.StatusServiceUnavailable)))
	assert.Equal(t, ClassRetry, DefaultClassifier(errors.New("eof")))
	assert.Equal(t, ClassRateLimited, DefaultClassifier(retryAfterErr(time.Second)))
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	lim := NewAdaptiveLimiter(LimiterConfig{Initial: 4, Min: 1, Max: 5, StepUp: 1, StepDown: 0.5, Calm: time.Minute})
	now := time.Unix(0, 0)
	lim.now = func() time.Time { return now }

	lim.RateLimited()
	assert.Equal(t, rate.Limit(2), lim.Limit())
	lim.RateLimited()
	lim.RateLimited()
	assert.Equal(t, rate.Limit(1), lim.Limit())

	lim.Success()
	assert.Equal(t, rate.Limit(1), lim.Limit(), "no step up inside the calm period")

	now = now.Add(2 * time.Minute)
	for i := 0; i < 10; i++ {
		lim.Success()
	}
	assert.Equal(t, rate.Limit(5), lim.Limit())
}
