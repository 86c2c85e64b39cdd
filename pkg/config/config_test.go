package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "", cfg.Cache.RedisAddr)
	assert.Equal(t, "", cfg.Database.DSN)
	assert.Equal(t, "ap-south-1", cfg.Bedrock.Region)
	assert.Equal(t, "amazon.titan-embed-text-v2:0", cfg.Bedrock.EmbeddingModelID)
	assert.Equal(t, 1024, cfg.Bedrock.EmbeddingDimension)
	assert.Equal(t, "titan-v2", cfg.Bedrock.EmbeddingVersion)
	assert.Equal(t, 100, cfg.RateLimit.UserLimit)
	assert.Equal(t, 200, cfg.RateLimit.IPLimit)
	assert.Equal(t, 1000, cfg.RateLimit.GlobalLimit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, 30*time.Second, cfg.Search.RequestTimeout)
	assert.Equal(t, 20, cfg.Search.PageSize)
	assert.Equal(t, float64(5000), cfg.Search.NearMeRadiusM)
	assert.False(t, cfg.Search.StrictCategory)
	assert.False(t, cfg.MockMode)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PLACEMESH_SERVER_LISTEN_ADDR", ":9090")
	t.Setenv("PLACEMESH_CACHE_REDIS_ADDR", "localhost:6379")
	t.Setenv("PLACEMESH_BEDROCK_REGION", "us-east-1")
	t.Setenv("PLACEMESH_RATE_LIMIT_USER_LIMIT", "50")
	t.Setenv("PLACEMESH_SEARCH_PAGE_SIZE", "10")
	t.Setenv("PLACEMESH_MOCK_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "us-east-1", cfg.Bedrock.Region)
	assert.Equal(t, 50, cfg.RateLimit.UserLimit)
	assert.Equal(t, 10, cfg.Search.PageSize)
	assert.True(t, cfg.MockMode)
}

func TestLoadDurationFromEnv(t *testing.T) {
	t.Setenv("PLACEMESH_SEARCH_REQUEST_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Search.RequestTimeout)
}
