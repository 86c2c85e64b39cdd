package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("operation timed out"), KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("connection refused"), KindTimeout},
		{errors.New("ThrottlingException: rate exceeded"), KindRateLimit},
		{errors.New("HTTP 429 too many requests"), KindRateLimit},
		{errors.New("AccessDenied: not authorized"), KindAPIError},
		{errors.New("503 service unavailable"), KindAPIError},
		{errors.New("something odd happened"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "error %q", tt.err)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindRateLimit.Retryable())
	assert.False(t, KindAPIError.Retryable())
	assert.False(t, KindUnknown.Retryable())
}

func TestWithFallbackSubstitutes(t *testing.T) {
	h := NewHarness(observability.NewNoopLogger(), observability.NewNoopMetricsClient())

	got, degraded := WithFallback(h, context.Background(), "analyze", "fallback",
		func(ctx context.Context) (string, error) {
			return "", errors.New("throttling")
		})
	assert.True(t, degraded)
	assert.Equal(t, "fallback", got)

	events := h.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "analyze", events[0].Operation)
	assert.Equal(t, KindRateLimit, events[0].Kind)
}

func TestWithFallbackPassesThrough(t *testing.T) {
	h := NewHarness(observability.NewNoopLogger(), observability.NewNoopMetricsClient())

	got, degraded := WithFallback(h, context.Background(), "analyze", "fallback",
		func(ctx context.Context) (string, error) {
			return "real", nil
		})
	assert.False(t, degraded)
	assert.Equal(t, "real", got)
	assert.Empty(t, h.Events())
}

func TestFallbackLogRingBounded(t *testing.T) {
	h := NewHarness(observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	for i := 0; i < maxFallbackLog+50; i++ {
		h.Record("op", fmt.Errorf("failure %d", i))
	}
	events := h.Events()
	assert.Len(t, events, maxFallbackLog)
	assert.Equal(t, fmt.Sprintf("failure %d", maxFallbackLog+49), events[len(events)-1].Error)
}

func TestRetryWithBackoffRecovers(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond}
	calls := 0
	got, err := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond}
	calls := 0
	_, err := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("access denied")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "api errors must not be retried")
}

func TestRetryWithBackoffExhaustsAndReturnsLastError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond}
	calls := 0
	_, err := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("timeout on attempt %d", calls)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout on attempt 3")
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 2
	b := NewBreaker(cfg, observability.NewNoopLogger())
	ctx := context.Background()

	boom := func(ctx context.Context) (string, error) { return "", errors.New("throttling") }

	_, err := Execute(b, ctx, boom)
	require.Error(t, err)
	_, err = Execute(b, ctx, boom)
	require.Error(t, err)

	// Breaker is now open; the operation must not run
	ran := false
	_, err = Execute(b, ctx, func(ctx context.Context) (string, error) {
		ran = true
		return "ok", nil
	})
	require.Error(t, err)
	assert.False(t, ran)
}
