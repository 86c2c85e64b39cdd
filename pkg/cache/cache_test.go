package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Score float64
}

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultRedisConfig()
	cfg.Address = mr.Addr()

	c, err := NewRedisCache(cfg, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, _ := setupRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, "query:abc:results", payload{Name: "starbucks", Score: 0.9}, time.Minute)

	var got payload
	require.True(t, c.Get(ctx, "query:abc:results", &got))
	assert.Equal(t, "starbucks", got.Name)
	assert.Equal(t, 0.9, got.Score)
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := setupRedisCache(t)
	var got payload
	assert.False(t, c.Get(context.Background(), "absent", &got))
}

func TestRedisCacheExpiry(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, "short", payload{Name: "x"}, time.Second)
	mr.FastForward(2 * time.Second)

	var got payload
	assert.False(t, c.Get(ctx, "short", &got), "expired entry must not leak")
}

func TestRedisCacheBackendFailureIsMiss(t *testing.T) {
	c, mr := setupRedisCache(t)
	ctx := context.Background()
	c.Set(ctx, "k", payload{Name: "v"}, time.Minute)

	mr.Close()

	var got payload
	assert.False(t, c.Get(ctx, "k", &got))
	// Set after backend failure must not panic or error out
	c.Set(ctx, "k2", payload{Name: "v2"}, time.Minute)
}

func TestRedisCacheScanAndDelete(t *testing.T) {
	c, _ := setupRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, "query:a:results", payload{}, time.Minute)
	c.Set(ctx, "query:b:results", payload{}, time.Minute)
	c.Set(ctx, "semantic:candidates:x", payload{}, time.Minute)

	n, err := c.ScanAndDelete(ctx, "query:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got payload
	assert.False(t, c.Get(ctx, "query:a:results", &got))
	assert.True(t, c.Get(ctx, "semantic:candidates:x", &got))
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(observability.NewNoopLogger())
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	c.Set(ctx, "k", payload{Name: "cafe"}, time.Minute)

	var got payload
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "cafe", got.Name)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(observability.NewNoopLogger())
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "k", payload{Name: "x"}, 30*time.Second)

	c.now = func() time.Time { return base.Add(time.Minute) }
	var got payload
	assert.False(t, c.Get(ctx, "k", &got), "expired entry must not leak")
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheSweep(t *testing.T) {
	c := NewMemoryCache(observability.NewNoopLogger())
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "a", payload{}, time.Second)
	c.Set(ctx, "b", payload{}, time.Hour)

	c.now = func() time.Time { return base.Add(time.Minute) }
	c.sweep()
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheScanAndDelete(t *testing.T) {
	c := NewMemoryCache(observability.NewNoopLogger())
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	c.Set(ctx, "query:1:analysis", payload{}, time.Minute)
	c.Set(ctx, "query:2:analysis", payload{}, time.Minute)
	c.Set(ctx, "geocode:19.07,72.87", payload{}, time.Minute)

	n, err := c.ScanAndDelete(ctx, "query:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())
}

func TestQueryKeyStableAndFilterSensitive(t *testing.T) {
	k1 := QueryKey("coffee shops", `{"city":"Mumbai"}`, "results")
	k2 := QueryKey("coffee shops", `{"city":"Mumbai"}`, "results")
	k3 := QueryKey("coffee shops", `{"city":"Pune"}`, "results")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Contains(t, k1, "query:")
	assert.Contains(t, k1, ":results")
}
