package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(cfg Config) *Limiter {
	return NewLimiter(cfg, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
}

func TestTryAcquireWithinLimits(t *testing.T) {
	l := newTestLimiter(Config{UserLimit: 2, IPLimit: 4, GlobalLimit: 10, Window: time.Hour})

	ok, _ := l.TryAcquire("u1", "1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.TryAcquire("u1", "1.2.3.4")
	assert.True(t, ok)

	ok, wait := l.TryAcquire("u1", "1.2.3.4")
	assert.False(t, ok, "third request for u1 must be refused")
	assert.Greater(t, wait, time.Duration(0))

	// A different user on the same IP still has slots
	ok, _ = l.TryAcquire("u2", "1.2.3.4")
	assert.True(t, ok)
}

func TestGlobalLimitCouplesAllScopes(t *testing.T) {
	l := newTestLimiter(Config{UserLimit: 100, IPLimit: 100, GlobalLimit: 3, Window: time.Hour})

	for i := 0; i < 3; i++ {
		ok, _ := l.TryAcquire(fmt.Sprintf("u%d", i), fmt.Sprintf("10.0.0.%d", i))
		require.True(t, ok)
	}
	ok, _ := l.TryAcquire("fresh-user", "10.9.9.9")
	assert.False(t, ok, "global bucket must refuse regardless of scope")
}

func TestWindowSlides(t *testing.T) {
	l := newTestLimiter(Config{UserLimit: 1, IPLimit: 10, GlobalLimit: 10, Window: time.Hour})
	base := time.Now()
	l.now = func() time.Time { return base }

	ok, _ := l.TryAcquire("u1", "")
	require.True(t, ok)
	ok, wait := l.TryAcquire("u1", "")
	require.False(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), wait.Seconds(), 1)

	// After the window passes, the old timestamp is pruned
	l.now = func() time.Time { return base.Add(61 * time.Minute) }
	ok, _ = l.TryAcquire("u1", "")
	assert.True(t, ok)
}

// At no instant may a bucket hold more in-window timestamps than its limit.
func TestBucketNeverExceedsLimit(t *testing.T) {
	cfg := Config{UserLimit: 5, IPLimit: 100, GlobalLimit: 100, Window: time.Hour}
	l := newTestLimiter(cfg)

	for i := 0; i < 20; i++ {
		l.TryAcquire("u1", "")
		l.mu.Lock()
		assert.LessOrEqual(t, len(l.buckets["user:u1"]), cfg.UserLimit)
		l.mu.Unlock()
	}
}

func TestWaitForSlotImmediate(t *testing.T) {
	l := newTestLimiter(Config{UserLimit: 10, IPLimit: 10, GlobalLimit: 10, Window: time.Hour, WaitTimeout: time.Second})
	err := l.WaitForSlot(context.Background(), "u1", "1.1.1.1")
	assert.NoError(t, err)
}

func TestWaitForSlotTimesOutWhenSaturated(t *testing.T) {
	l := newTestLimiter(Config{UserLimit: 1, IPLimit: 10, GlobalLimit: 10, Window: time.Hour, WaitTimeout: 100 * time.Millisecond})

	ok, _ := l.TryAcquire("u1", "")
	require.True(t, ok)

	start := time.Now()
	err := l.WaitForSlot(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrRateLimitTimeout)
	assert.Less(t, time.Since(start), time.Second, "must fail fast when the slot cannot free in time")
}

func TestWaitForSlotCancellationDoesNotRecord(t *testing.T) {
	// Window short enough that the waiter idles instead of failing fast
	l := newTestLimiter(Config{UserLimit: 1, IPLimit: 10, GlobalLimit: 10, Window: 500 * time.Millisecond, WaitTimeout: 10 * time.Second})

	ok, _ := l.TryAcquire("u1", "")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.WaitForSlot(ctx, "u1", "") }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	l.mu.Lock()
	assert.Len(t, l.queue, 0, "cancelled waiter must leave the queue")
	assert.Len(t, l.buckets["user:u1"], 1, "cancelled waiter must not record")
	l.mu.Unlock()
}

func TestStatus(t *testing.T) {
	l := newTestLimiter(Config{UserLimit: 3, IPLimit: 5, GlobalLimit: 10, Window: time.Hour})

	l.TryAcquire("u1", "1.1.1.1")
	l.TryAcquire("u1", "1.1.1.1")

	s := l.Status("u1", "1.1.1.1")
	assert.Equal(t, 1, s.UserRemaining)
	assert.Equal(t, 3, s.IPRemaining)
	assert.Equal(t, 8, s.GlobalRemaining)

	anon := l.Status("", "")
	assert.Equal(t, 3, anon.UserRemaining)
	assert.Equal(t, 5, anon.IPRemaining)
}
