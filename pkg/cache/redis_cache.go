package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/placemesh/placemesh/pkg/observability"
)

// RedisConfig holds connection settings for the Redis backend
type RedisConfig struct {
	Address      string
	Username     string
	Password     string
	Database     int
	UseTLS       bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults for a local Redis
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisCache implements Cache over a Redis backend
type RedisCache struct {
	client  *redis.Client
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewRedisCache creates a Redis cache client and verifies connectivity
func NewRedisCache(cfg RedisConfig, logger observability.Logger, metrics observability.MetricsClient) (*RedisCache, error) {
	if logger == nil {
		logger = observability.NewLogger("cache.redis")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	options := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.UseTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, logger: logger, metrics: metrics}, nil
}

// Get unmarshals the cached value into out; any backend or decode failure
// is a miss.
func (c *RedisCache) Get(ctx context.Context, key string, out interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.metrics.IncrementCounter("cache.miss", 1)
		return false
	}
	if err != nil {
		c.logger.Warn("Redis get failed, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		c.metrics.IncrementCounter("cache.error", 1)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("Cached value failed to decode, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	c.metrics.IncrementCounter("cache.hit", 1)
	return true
}

// Set stores the value with a TTL. Errors are logged, never returned.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to marshal cache value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("Redis set failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		c.metrics.IncrementCounter("cache.error", 1)
	}
}

// Delete removes a key
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// ScanAndDelete removes all keys matching a glob pattern using SCAN so the
// server is never blocked by a KEYS call.
func (c *RedisCache) ScanAndDelete(ctx context.Context, pattern string) (int, error) {
	var deleted int
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("Failed to delete scanned key", map[string]interface{}{
				"key":   iter.Val(),
				"error": err.Error(),
			})
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return deleted, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
