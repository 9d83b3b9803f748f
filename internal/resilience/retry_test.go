package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestBackoffSchedule(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
	}

	assert.Equal(t, 2*time.Second, Backoff(0, cfg))
	assert.Equal(t, 4*time.Second, Backoff(1, cfg))
	assert.Equal(t, 8*time.Second, Backoff(2, cfg))
	assert.Equal(t, 16*time.Second, Backoff(3, cfg))
	assert.Equal(t, 30*time.Second, Backoff(4, cfg), "capped at MaxBackoff")
}

func TestBackoffJitterBounds(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}

	for i := 0; i < 100; i++ {
		d := Backoff(0, cfg)
		assert.GreaterOrEqual(t, d, 7500*time.Millisecond)
		assert.LessOrEqual(t, d, 12500*time.Millisecond)
	}
}

func TestDoValSucceedsFirstTry(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), RetryConfig{Sleep: noSleep}, func(_ context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 1, calls)
}

func TestDoValRetriesTransient(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: noSleep}, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.New("upstream hiccup"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoValStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := eris.New("bad request")
	_, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 5, Sleep: noSleep}, func(_ context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-transient errors are not retried by default")
}

func TestDoValExhaustsAttempts(t *testing.T) {
	calls := 0
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
		ShouldRetry:    func(error) bool { return true },
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 0, eris.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDoValContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, RetryConfig{MaxAttempts: 5, ShouldRetry: func(error) bool { return true }, Sleep: noSleep},
		func(_ context.Context) (int, error) {
			calls++
			cancel()
			return 0, eris.New("fails")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancellation stops further attempts")
}

func TestDoValOnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts: 3,
		ShouldRetry: func(error) bool { return true },
		OnRetry:     func(attempt int, _ error) { attempts = append(attempts, attempt) },
		Sleep:       noSleep,
	}

	_, _ = DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 0, eris.New("fails")
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(NewTransientError(eris.New("slow down"), 429)))
	assert.True(t, IsRateLimited(eris.New("got 429 from upstream")))
	assert.True(t, IsRateLimited(eris.New("Rate limit exceeded")))
	assert.False(t, IsRateLimited(eris.New("500 internal server error")))
	assert.False(t, IsRateLimited(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), 503)))
	assert.True(t, IsTransient(eris.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(eris.New("dial tcp: i/o timeout")))
	assert.False(t, IsTransient(eris.New("invalid request")))
	assert.False(t, IsTransient(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestStatusCode(t *testing.T) {
	wrapped := eris.Wrap(NewTransientError(errors.New("x"), 429), "outer")
	assert.Equal(t, 429, StatusCode(wrapped))
	assert.Zero(t, StatusCode(errors.New("plain")))
}
