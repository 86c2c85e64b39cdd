package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/placemesh/placemesh/pkg/observability"
)

// FallbackEvent records one substitution of a degraded result
type FallbackEvent struct {
	Operation string    `json:"operation"`
	Kind      ErrorKind `json:"kind"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// maxFallbackLog bounds the in-memory fallback event ring
const maxFallbackLog = 1000

// Harness runs operations with retry and fallback substitution and keeps a
// bounded ring of fallback events for inspection. Safe for concurrent use.
type Harness struct {
	logger  observability.Logger
	metrics observability.MetricsClient

	mu   sync.Mutex
	ring []FallbackEvent
}

// NewHarness creates a fallback harness
func NewHarness(logger observability.Logger, metrics observability.MetricsClient) *Harness {
	if logger == nil {
		logger = observability.NewLogger("resilience")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Harness{logger: logger, metrics: metrics}
}

// WithFallback runs op; on failure it logs the event and returns fallback.
// The returned bool reports whether the fallback was used.
func WithFallback[T any](h *Harness, ctx context.Context, operation string, fallback T, op func(ctx context.Context) (T, error)) (T, bool) {
	out, err := op(ctx)
	if err == nil {
		return out, false
	}
	h.Record(operation, err)
	return fallback, true
}

// RetryConfig controls RetryWithBackoff
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// DefaultRetryConfig is the 1s, 2s, 4s schedule with three attempts
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Second}
}

// RetryWithBackoff retries op while the failure classifies as retryable
// (timeout, throttle, transient network), doubling the delay each attempt.
// The last error is returned on exhaustion; non-retryable failures return
// immediately.
func RetryWithBackoff[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialDelay
	policy.Multiplier = 2.0
	policy.RandomizationFactor = 0 // deterministic 1s, 2s, 4s schedule
	policy.MaxInterval = cfg.InitialDelay << uint(cfg.MaxRetries)

	var out T
	attempts := 0
	operation := func() error {
		var err error
		out, err = op(ctx)
		if err == nil {
			return nil
		}
		attempts++
		if attempts > cfg.MaxRetries || !Classify(err).Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return out, err
}

// Events returns a copy of the recorded fallback events, newest last
func (h *Harness) Events() []FallbackEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]FallbackEvent, len(h.ring))
	copy(out, h.ring)
	return out
}

// Record notes a fallback substitution in the event ring. Stages that
// substitute their degraded result inline call this directly instead of
// going through WithFallback.
func (h *Harness) Record(operation string, err error) {
	kind := Classify(err)
	h.logger.Warn("Operation failed, substituting fallback", map[string]interface{}{
		"operation": operation,
		"kind":      string(kind),
		"error":     err.Error(),
	})
	h.metrics.IncrementCounterWithLabels("fallback.used", 1, map[string]string{
		"operation": operation,
		"kind":      string(kind),
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring = append(h.ring, FallbackEvent{
		Operation: operation,
		Kind:      kind,
		Error:     err.Error(),
		At:        time.Now(),
	})
	if len(h.ring) > maxFallbackLog {
		h.ring = h.ring[len(h.ring)-maxFallbackLog:]
	}
}
