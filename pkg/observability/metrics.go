package observability

import (
	"sync"
	"time"
)

// MetricsClient defines the interface for metrics collection
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordLatency(operation string, duration time.Duration)

	// StartTimer returns a function that records the elapsed time when called
	StartTimer(name string, labels map[string]string) func()

	Close() error
}

// inMemoryMetrics is a simple thread-safe MetricsClient that keeps counters
// in memory. It is the default client when no metrics backend is configured
// and doubles as the assertion target in tests.
type inMemoryMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
}

// NewMetricsClient creates an in-memory metrics client
func NewMetricsClient() MetricsClient {
	return &inMemoryMetrics{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
	}
}

func (m *inMemoryMetrics) IncrementCounter(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *inMemoryMetrics) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	m.IncrementCounter(name, value)
}

func (m *inMemoryMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

func (m *inMemoryMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name+".sum"] += value
	m.counters[name+".count"]++
}

func (m *inMemoryMetrics) RecordLatency(operation string, duration time.Duration) {
	m.RecordHistogram(operation+".latency_seconds", duration.Seconds(), nil)
}

func (m *inMemoryMetrics) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		m.RecordHistogram(name, time.Since(start).Seconds(), labels)
	}
}

func (m *inMemoryMetrics) Close() error { return nil }

// CounterValue returns the current value of a counter. Test helper.
func CounterValue(c MetricsClient, name string) float64 {
	if im, ok := c.(*inMemoryMetrics); ok {
		im.mu.Lock()
		defer im.mu.Unlock()
		return im.counters[name]
	}
	return 0
}

// noopMetrics discards all metrics
type noopMetrics struct{}

// NewNoopMetricsClient creates a metrics client that discards everything
func NewNoopMetricsClient() MetricsClient { return &noopMetrics{} }

func (n *noopMetrics) IncrementCounter(name string, value float64) {}
func (n *noopMetrics) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}
func (n *noopMetrics) RecordGauge(name string, value float64, labels map[string]string)     {}
func (n *noopMetrics) RecordHistogram(name string, value float64, labels map[string]string) {}
func (n *noopMetrics) RecordLatency(operation string, duration time.Duration)               {}
func (n *noopMetrics) StartTimer(name string, labels map[string]string) func()              { return func() {} }
func (n *noopMetrics) Close() error                                                         { return nil }
