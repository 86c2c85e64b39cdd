// Package ratelimit implements the sliding-window admission control that
// guards external model calls. Three coupled hourly counters apply: per
// user, per client IP, and global. Callers that cannot be admitted
// immediately join a FIFO queue and wait until a slot frees or their
// timeout expires.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/placemesh/placemesh/pkg/observability"
)

// ErrRateLimitTimeout is returned when a waiter exceeds its admission timeout
var ErrRateLimitTimeout = errors.New("rate limit wait timed out")

const globalKey = "global"

// Config holds the limiter settings. Limits are requests per window.
type Config struct {
	UserLimit   int
	IPLimit     int
	GlobalLimit int
	Window      time.Duration
	// WaitTimeout bounds how long WaitForSlot blocks by default
	WaitTimeout time.Duration
}

// DefaultConfig returns the deployment defaults: 100/user, 200/ip,
// 1000 global per hour, 5s admission wait.
func DefaultConfig() Config {
	return Config{
		UserLimit:   100,
		IPLimit:     200,
		GlobalLimit: 1000,
		Window:      time.Hour,
		WaitTimeout: 5 * time.Second,
	}
}

// Status reports remaining slots per scope
type Status struct {
	UserRemaining   int `json:"user_remaining"`
	IPRemaining     int `json:"ip_remaining"`
	GlobalRemaining int `json:"global_remaining"`
}

type waiter struct {
	userID string
	ip     string
	done   chan struct{} // closed when the waiter should re-check
}

// Limiter is the sliding-window rate limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	queue   []*waiter
	config  Config
	logger  observability.Logger
	metrics observability.MetricsClient

	now func() time.Time // overridable in tests
}

// NewLimiter creates a rate limiter with the given configuration
func NewLimiter(config Config, logger observability.Logger, metrics observability.MetricsClient) *Limiter {
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = observability.NewLogger("ratelimit")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Limiter{
		buckets: make(map[string][]time.Time),
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// TryAcquire attempts immediate admission. On success a timestamp is
// recorded in every applicable bucket. On refusal it returns how long the
// caller would have to wait for the limiting bucket to free a slot.
func (l *Limiter) TryAcquire(userID, ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Queued waiters go first
	if len(l.queue) > 0 {
		_, wait := l.check(userID, ip)
		return false, wait
	}
	return l.tryAcquireLocked(userID, ip)
}

// WaitForSlot blocks until the caller is admitted or the timeout expires.
// Waiters are served strictly FIFO; a cancelled waiter leaves the queue
// without recording anything.
func (l *Limiter) WaitForSlot(ctx context.Context, userID, ip string) error {
	l.mu.Lock()
	if len(l.queue) == 0 {
		if ok, _ := l.tryAcquireLocked(userID, ip); ok {
			l.mu.Unlock()
			return nil
		}
	}

	w := &waiter{userID: userID, ip: ip, done: make(chan struct{}, 1)}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	l.metrics.IncrementCounter("ratelimit.queued", 1)

	timeout := l.config.WaitTimeout
	deadline := l.now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		l.mu.Lock()
		if len(l.queue) > 0 && l.queue[0] == w {
			if ok, wait := l.tryAcquireLocked(userID, ip); ok {
				l.queue = l.queue[1:]
				l.notifyHeadLocked()
				l.mu.Unlock()
				return nil
			} else if remaining := deadline.Sub(l.now()); wait > remaining {
				// The limiting bucket cannot free a slot before the
				// deadline; fail fast instead of idling
				l.removeWaiterLocked(w)
				l.mu.Unlock()
				l.metrics.IncrementCounter("ratelimit.timeout", 1)
				return fmt.Errorf("%w: next slot in %s", ErrRateLimitTimeout, wait.Round(time.Millisecond))
			}
		}
		l.mu.Unlock()

		select {
		case <-w.done:
			// Re-check admission
		case <-time.After(50 * time.Millisecond):
			// Periodic re-check; slots free only through time passing
		case <-timer.C:
			l.mu.Lock()
			l.removeWaiterLocked(w)
			l.mu.Unlock()
			l.metrics.IncrementCounter("ratelimit.timeout", 1)
			return ErrRateLimitTimeout
		case <-ctx.Done():
			l.mu.Lock()
			l.removeWaiterLocked(w)
			l.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Status returns the remaining slots for each applicable scope
func (l *Limiter) Status(userID, ip string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	s := Status{
		UserRemaining:   l.config.UserLimit,
		IPRemaining:     l.config.IPLimit,
		GlobalRemaining: l.config.GlobalLimit - l.pruned(globalKey, now),
	}
	if userID != "" {
		s.UserRemaining = l.config.UserLimit - l.pruned("user:"+userID, now)
	}
	if ip != "" {
		s.IPRemaining = l.config.IPLimit - l.pruned("ip:"+ip, now)
	}
	return s
}

// tryAcquireLocked prunes, checks every applicable counter, and records a
// timestamp in each on admission. Caller holds the mutex.
func (l *Limiter) tryAcquireLocked(userID, ip string) (bool, time.Duration) {
	ok, wait := l.check(userID, ip)
	if !ok {
		return false, wait
	}
	now := l.now()
	if userID != "" {
		l.buckets["user:"+userID] = append(l.buckets["user:"+userID], now)
	}
	if ip != "" {
		l.buckets["ip:"+ip] = append(l.buckets["ip:"+ip], now)
	}
	l.buckets[globalKey] = append(l.buckets[globalKey], now)
	return true, 0
}

// check prunes and tests every applicable counter without recording.
// Returns the longest wait among the limiting counters when refused.
func (l *Limiter) check(userID, ip string) (bool, time.Duration) {
	now := l.now()
	var maxWait time.Duration
	allowed := true

	test := func(key string, limit int) {
		count := l.pruned(key, now)
		if count >= limit {
			allowed = false
			oldest := l.buckets[key][0]
			if wait := l.config.Window - now.Sub(oldest); wait > maxWait {
				maxWait = wait
			}
		}
	}

	if userID != "" {
		test("user:"+userID, l.config.UserLimit)
	}
	if ip != "" {
		test("ip:"+ip, l.config.IPLimit)
	}
	test(globalKey, l.config.GlobalLimit)

	return allowed, maxWait
}

// pruned drops timestamps older than the window and returns the bucket size
func (l *Limiter) pruned(key string, now time.Time) int {
	ts := l.buckets[key]
	cutoff := now.Add(-l.config.Window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		ts = ts[i:]
		if len(ts) == 0 {
			delete(l.buckets, key)
		} else {
			l.buckets[key] = ts
		}
	}
	return len(ts)
}

func (l *Limiter) removeWaiterLocked(w *waiter) {
	for i, q := range l.queue {
		if q == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}
	l.notifyHeadLocked()
}

// notifyHeadLocked nudges the new queue head to re-check admission
func (l *Limiter) notifyHeadLocked() {
	if len(l.queue) > 0 {
		select {
		case l.queue[0].done <- struct{}{}:
		default:
		}
	}
}
