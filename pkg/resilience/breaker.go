package resilience

import (
	"context"
	"time"

	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/sony/gobreaker"
)

// BreakerConfig controls the model-call circuit breaker
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the defaults used for external model calls
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker wraps sony/gobreaker so repeated model failures trip fast
// instead of queueing 10s timeouts.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewBreaker creates a circuit breaker
func NewBreaker(cfg BreakerConfig, logger observability.Logger) *Breaker {
	if logger == nil {
		logger = observability.NewLogger("resilience.breaker")
	}
	b := &Breaker{logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
	return b
}

// Execute runs op through the breaker
func Execute[T any](b *Breaker, ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}
