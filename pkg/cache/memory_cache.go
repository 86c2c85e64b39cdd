package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"

	"github.com/placemesh/placemesh/pkg/observability"
)

// memoryEntry is one in-process cache entry with an explicit expiry
type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is the in-process fallback backend selected when no Redis
// endpoint is configured. Entries carry explicit expiry timestamps and a
// background goroutine sweeps expired ones periodically.
//
// MemoryCache is safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	logger  observability.Logger

	cleanupEvery time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once

	now func() time.Time // overridable in tests
}

// NewMemoryCache creates an in-process cache and starts its cleanup routine
func NewMemoryCache(logger observability.Logger) *MemoryCache {
	if logger == nil {
		logger = observability.NewLogger("cache.memory")
	}
	c := &MemoryCache{
		entries:      make(map[string]memoryEntry),
		logger:       logger,
		cleanupEvery: time.Minute,
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
	go c.cleanupRoutine()
	return c
}

// Get unmarshals the cached value into out. Expired entries are removed
// lazily and reported as misses.
func (c *MemoryCache) Get(ctx context.Context, key string, out interface{}) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false
	}
	if err := json.Unmarshal(entry.data, out); err != nil {
		return false
	}
	return true
}

// Set stores the value with a TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to marshal cache value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes a key
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// ScanAndDelete removes every key matching the glob pattern
func (c *MemoryCache) ScanAndDelete(ctx context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleted := 0
	for key := range c.entries {
		if matched, _ := path.Match(pattern, key); matched {
			delete(c.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Close stops the cleanup routine
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}

// Len returns the number of live entries. Test helper.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) cleanupRoutine() {
	ticker := time.NewTicker(c.cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
