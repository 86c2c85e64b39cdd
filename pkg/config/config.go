// Package config loads runtime configuration from an optional YAML file
// and PLACEMESH_-prefixed environment variables. Every knob has a default
// so the server starts with no configuration at all, selecting in-process
// backends where credentials are absent.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Bedrock   BedrockConfig   `mapstructure:"bedrock"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Search    SearchConfig    `mapstructure:"search"`

	// MockMode selects stubbed model clients for local development
	MockMode bool   `mapstructure:"mock_mode"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig selects the cache backend. An empty RedisAddr selects the
// in-process cache.
type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// DatabaseConfig selects the business store backend. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// BedrockConfig configures the external model clients
type BedrockConfig struct {
	Region             string `mapstructure:"region"`
	LLMModelID         string `mapstructure:"llm_model_id"`
	FallbackModelID    string `mapstructure:"fallback_model_id"`
	EmbeddingModelID   string `mapstructure:"embedding_model_id"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension"`
	EmbeddingVersion   string `mapstructure:"embedding_version"`
}

// RateLimitConfig configures model-call admission
type RateLimitConfig struct {
	UserLimit   int           `mapstructure:"user_limit"`
	IPLimit     int           `mapstructure:"ip_limit"`
	GlobalLimit int           `mapstructure:"global_limit"`
	Window      time.Duration `mapstructure:"window"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// SearchConfig tunes the query pipeline
type SearchConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetrievalLimit int           `mapstructure:"retrieval_limit"`
	PageSize       int           `mapstructure:"page_size"`
	NearMeRadiusM  float64       `mapstructure:"near_me_radius_m"`
	StrictCategory bool          `mapstructure:"strict_category"`
}

// Load reads configuration from the optional config file and environment
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PLACEMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 35*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("bedrock.region", "ap-south-1")
	v.SetDefault("bedrock.llm_model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.fallback_model_id", "")
	v.SetDefault("bedrock.embedding_model_id", "amazon.titan-embed-text-v2:0")
	v.SetDefault("bedrock.embedding_dimension", 1024)
	v.SetDefault("bedrock.embedding_version", "titan-v2")

	v.SetDefault("rate_limit.user_limit", 100)
	v.SetDefault("rate_limit.ip_limit", 200)
	v.SetDefault("rate_limit.global_limit", 1000)
	v.SetDefault("rate_limit.window", time.Hour)
	v.SetDefault("rate_limit.wait_timeout", 5*time.Second)

	v.SetDefault("search.request_timeout", 30*time.Second)
	v.SetDefault("search.retrieval_limit", 50)
	v.SetDefault("search.page_size", 20)
	v.SetDefault("search.near_me_radius_m", 5000)
	v.SetDefault("search.strict_category", false)

	v.SetDefault("mock_mode", false)
	v.SetDefault("log_level", "info")
}
