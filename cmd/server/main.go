// Command server runs the placemesh search API. Backends are selected
// from configuration: Redis or in-process cache, Postgres or in-memory
// store, Bedrock or stubbed model clients in mock mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/placemesh/placemesh/internal/api"
	"github.com/placemesh/placemesh/pkg/cache"
	"github.com/placemesh/placemesh/pkg/config"
	"github.com/placemesh/placemesh/pkg/embedding"
	"github.com/placemesh/placemesh/pkg/filter"
	"github.com/placemesh/placemesh/pkg/nlp"
	"github.com/placemesh/placemesh/pkg/normalize"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/placemesh/placemesh/pkg/pipeline"
	"github.com/placemesh/placemesh/pkg/ranking"
	"github.com/placemesh/placemesh/pkg/ratelimit"
	"github.com/placemesh/placemesh/pkg/resilience"
	"github.com/placemesh/placemesh/pkg/retrieval"
	"github.com/placemesh/placemesh/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLoggerWithLevel("placemesh", logLevel(cfg.LogLevel))
	metrics := observability.NewMetricsClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheBackend, err := buildCache(cfg, logger, metrics)
	if err != nil {
		return err
	}

	businesses, vectors, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}

	taxonomy := normalize.DefaultTaxonomy()
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		UserLimit:   cfg.RateLimit.UserLimit,
		IPLimit:     cfg.RateLimit.IPLimit,
		GlobalLimit: cfg.RateLimit.GlobalLimit,
		Window:      cfg.RateLimit.Window,
		WaitTimeout: cfg.RateLimit.WaitTimeout,
	}, logger, metrics)
	harness := resilience.NewHarness(logger, metrics)
	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig("bedrock"), logger)

	llm, provider, err := buildModelClients(ctx, cfg, taxonomy, logger, metrics)
	if err != nil {
		return err
	}

	analyzer, err := nlp.NewAnalyzer(nlp.Config{
		Client:   llm,
		Taxonomy: taxonomy,
		Limiter:  limiter,
		Harness:  harness,
		Breaker:  breaker,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	defer analyzer.Shutdown()

	embedder := embedding.NewCachedProvider(provider, cacheBackend, logger, metrics).
		WithAdmission(func(ctx context.Context) error {
			pr := ratelimit.PrincipalFromContext(ctx)
			return limiter.WaitForSlot(ctx, pr.UserID, pr.IP)
		})

	p, err := pipeline.New(pipeline.Config{
		Cache:    cacheBackend,
		Analyzer: analyzer,
		Embedder: embedder,
		Keyword:  retrieval.NewKeywordRetriever(businesses, taxonomy, logger, metrics),
		Semantic: retrieval.NewSemanticRetriever(businesses, vectors, cacheBackend, retrieval.SemanticConfig{
			Version:   provider.Version(),
			Dimension: provider.Dimension(),
		}, logger, metrics),
		Filter:         filter.NewStage(taxonomy, logger, metrics),
		Ranker:         ranking.NewRanker(logger, metrics),
		Taxonomy:       taxonomy,
		Limiter:        limiter,
		Harness:        harness,
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.Search.RequestTimeout,
		RetrievalLimit: cfg.Search.RetrievalLimit,
		PageSize:       cfg.Search.PageSize,
		NearMeRadiusM:  cfg.Search.NearMeRadiusM,
		StrictCategory: cfg.Search.StrictCategory,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	srv, err := api.NewServer(api.Config{
		Pipeline: p,
		Limiter:  limiter,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", map[string]interface{}{
			"addr":      cfg.Server.ListenAddr,
			"mock_mode": cfg.MockMode,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildCache selects Redis when an address is configured, otherwise the
// in-process cache.
func buildCache(cfg *config.Config, logger observability.Logger, metrics observability.MetricsClient) (cache.Cache, error) {
	if cfg.Cache.RedisAddr == "" {
		logger.Info("Using in-process cache", nil)
		return cache.NewMemoryCache(logger), nil
	}
	c, err := cache.NewRedisCache(cache.RedisConfig{
		Address:  cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		Database: cfg.Cache.RedisDB,
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return c, nil
}

// buildStores selects Postgres when a DSN is configured, otherwise the
// in-memory store.
func buildStores(cfg *config.Config, logger observability.Logger) (store.BusinessStore, store.VectorStore, error) {
	if cfg.Database.DSN == "" {
		logger.Info("Using in-memory business store", nil)
		mem := store.NewMemoryStore()
		return mem, mem, nil
	}
	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	pg, err := store.NewPostgresStore(db, logger)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg, nil
}

// buildModelClients returns the LLM and embedding providers, stubbed in
// mock mode.
func buildModelClients(ctx context.Context, cfg *config.Config, taxonomy *normalize.Taxonomy, logger observability.Logger, metrics observability.MetricsClient) (nlp.LLMClient, embedding.Provider, error) {
	if cfg.MockMode {
		logger.Info("Mock mode: using stubbed model clients", nil)
		return nlp.NewStubClient(taxonomy),
			embedding.NewLocalProvider(cfg.Bedrock.EmbeddingDimension, "local-v1"),
			nil
	}
	llm, err := nlp.NewBedrockClient(ctx, cfg.Bedrock.Region, cfg.Bedrock.LLMModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bedrock client: %w", err)
	}
	provider, err := embedding.NewBedrockProvider(ctx, embedding.BedrockConfig{
		Region:    cfg.Bedrock.Region,
		ModelID:   cfg.Bedrock.EmbeddingModelID,
		Dimension: cfg.Bedrock.EmbeddingDimension,
		Version:   cfg.Bedrock.EmbeddingVersion,
	}, logger, metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	return llm, provider, nil
}

func logLevel(s string) observability.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return observability.LogLevelDebug
	case "warn":
		return observability.LogLevelWarn
	case "error":
		return observability.LogLevelError
	default:
		return observability.LogLevelInfo
	}
}
