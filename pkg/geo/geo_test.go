package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHaversineMeters(t *testing.T) {
	// Mumbai to Bangalore is roughly 840km
	d := HaversineMeters(19.0760, 72.8777, 12.9716, 77.5946)
	assert.InDelta(t, 840_000, d, 20_000)

	assert.Zero(t, HaversineMeters(19.0760, 72.8777, 19.0760, 72.8777))
}

func TestWithinRadius(t *testing.T) {
	// Two points ~1.2km apart in Mumbai
	assert.True(t, WithinRadius(19.0760, 72.8777, 19.0860, 72.8800, 2000))
	assert.False(t, WithinRadius(19.0760, 72.8777, 12.9716, 77.5946, 2000))
}

func TestIndiaBoundingBox(t *testing.T) {
	assert.True(t, IndiaBoundingBox.Contains(19.0760, 72.8777))
	assert.False(t, IndiaBoundingBox.Contains(51.5074, -0.1278))
}

func TestProfileLocationStale(t *testing.T) {
	now := time.Now()

	fresh := now.Add(-24 * time.Hour)
	p := &ProfileLocation{LastUpdated: &fresh}
	assert.False(t, p.Stale(now))

	old := now.Add(-40 * 24 * time.Hour)
	p.LastUpdated = &old
	assert.True(t, p.Stale(now))

	assert.False(t, (&ProfileLocation{}).Stale(now))
}
