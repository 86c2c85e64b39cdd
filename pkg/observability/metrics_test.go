package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryMetricsCounters(t *testing.T) {
	m := NewMetricsClient()
	m.IncrementCounter("requests", 1)
	m.IncrementCounter("requests", 2)
	m.IncrementCounterWithLabels("requests", 1, map[string]string{"kind": "search"})

	assert.Equal(t, 4.0, CounterValue(m, "requests"))
}

func TestStartTimerRecordsHistogram(t *testing.T) {
	m := NewMetricsClient()

	stop := m.StartTimer("embedding.latency", nil)
	stop()
	stop = m.StartTimer("embedding.latency", map[string]string{"model": "titan"})
	stop()

	assert.Equal(t, 2.0, CounterValue(m, "embedding.latency.count"))
}

func TestRecordLatency(t *testing.T) {
	m := NewMetricsClient()
	m.RecordLatency("op", 250*time.Millisecond)

	assert.Equal(t, 1.0, CounterValue(m, "op.latency_seconds.count"))
	assert.InDelta(t, 0.25, CounterValue(m, "op.latency_seconds.sum"), 1e-9)
}

func TestNoopMetricsClient(t *testing.T) {
	m := NewNoopMetricsClient()
	m.IncrementCounter("x", 1)
	stop := m.StartTimer("x", nil)
	stop()

	assert.Zero(t, CounterValue(m, "x"))
	assert.NoError(t, m.Close())
}
