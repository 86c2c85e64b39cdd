package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/placemesh/placemesh/pkg/cache"
	"github.com/placemesh/placemesh/pkg/observability"
)

// CachedProvider fronts a Provider with the shared cache. Embeddings are
// deterministic for a given model version, so entries live for the long
// embedding TTL and are keyed by version plus a hash of the text.
type CachedProvider struct {
	inner   Provider
	cache   cache.Cache
	logger  observability.Logger
	metrics observability.MetricsClient

	// admit runs before a miss reaches the inner provider. Cache hits are
	// free and never admitted.
	admit func(ctx context.Context) error
}

// NewCachedProvider wraps inner with caching
func NewCachedProvider(inner Provider, c cache.Cache, logger observability.Logger, metrics observability.MetricsClient) *CachedProvider {
	if logger == nil {
		logger = observability.NewLogger("embedding.cache")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &CachedProvider{inner: inner, cache: c, logger: logger, metrics: metrics}
}

// WithAdmission installs a gate run before each uncached model call,
// typically the rate limiter's wait-for-slot.
func (p *CachedProvider) WithAdmission(admit func(ctx context.Context) error) *CachedProvider {
	p.admit = admit
	return p
}

func (p *CachedProvider) key(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return fmt.Sprintf("emb:%s:%s", p.inner.Version(), cache.HashString(normalized))
}

// Embed returns the cached vector when present, otherwise embeds and
// stores the result.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := p.key(text)

	var cached []float32
	if p.cache.Get(ctx, key, &cached) && len(cached) == p.inner.Dimension() {
		p.metrics.IncrementCounterWithLabels("cache.hits", 1, map[string]string{"kind": "embedding"})
		return cached, nil
	}
	p.metrics.IncrementCounterWithLabels("cache.misses", 1, map[string]string{"kind": "embedding"})

	if p.admit != nil {
		if err := p.admit(ctx); err != nil {
			return nil, fmt.Errorf("embedding admission: %w", err)
		}
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(ctx, key, vec, cache.TTLQueryEmbedding)
	return vec, nil
}

// Dimension returns the inner provider's dimension
func (p *CachedProvider) Dimension() int { return p.inner.Dimension() }

// Version returns the inner provider's version tag
func (p *CachedProvider) Version() string { return p.inner.Version() }
