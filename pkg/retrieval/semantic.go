package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/placemesh/placemesh/pkg/cache"
	"github.com/placemesh/placemesh/pkg/geo"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/placemesh/placemesh/pkg/store"
)

// maxCandidates caps the semantic candidate set per call
const maxCandidates = 200

// defaultFingerprintComponents is how many leading vector components feed
// the similarity cache key. Collisions are benign because the filter hash
// is part of the key.
const defaultFingerprintComponents = 10

// SemanticHit is one scored semantic-retrieval candidate. Similarity is
// raw cosine in [-1,1]; the merger shifts it to [0,1].
type SemanticHit struct {
	Business   *models.Business `json:"business"`
	Similarity float64          `json:"similarity"`
}

// SemanticQuery describes one semantic retrieval call
type SemanticQuery struct {
	Vector     []float32
	CategoryID string
	City       string
	// Location bounds candidates to a radius when non-nil
	Location *geo.Point
	RadiusKM float64
	Limit    int
}

// SemanticRetriever scores stored business vectors against the query vector
type SemanticRetriever struct {
	store     store.BusinessStore
	vectors   store.VectorStore
	cache     cache.Cache
	version   string
	dimension int

	fetchConcurrency int
	batchSize        int
	fingerprint      int

	logger  observability.Logger
	metrics observability.MetricsClient
}

// SemanticConfig configures the semantic retriever
type SemanticConfig struct {
	Version          string
	Dimension        int
	FetchConcurrency int
	BatchSize        int
	// FingerprintComponents is how many leading vector components feed
	// the similarity cache key
	FingerprintComponents int
}

// NewSemanticRetriever creates a semantic retriever
func NewSemanticRetriever(s store.BusinessStore, v store.VectorStore, c cache.Cache, cfg SemanticConfig, logger observability.Logger, metrics observability.MetricsClient) *SemanticRetriever {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1024
	}
	if cfg.Version == "" {
		cfg.Version = "titan-v2"
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.FingerprintComponents <= 0 {
		cfg.FingerprintComponents = defaultFingerprintComponents
	}
	if logger == nil {
		logger = observability.NewLogger("retrieval.semantic")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &SemanticRetriever{
		store:            s,
		vectors:          v,
		cache:            c,
		version:          cfg.Version,
		dimension:        cfg.Dimension,
		fetchConcurrency: cfg.FetchConcurrency,
		batchSize:        cfg.BatchSize,
		fingerprint:      cfg.FingerprintComponents,
		logger:           logger,
		metrics:          metrics,
	}
}

// Search returns candidates scored by cosine similarity, descending,
// truncated to q.Limit. A zero query vector short-circuits to an empty
// contribution.
func (r *SemanticRetriever) Search(ctx context.Context, q SemanticQuery) ([]SemanticHit, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if len(q.Vector) != r.dimension {
		return nil, fmt.Errorf("query vector: expected dimension %d, got %d", r.dimension, len(q.Vector))
	}
	if isZeroVector(q.Vector) {
		return nil, nil
	}

	simKey := r.similarityKey(q)
	var cached []SemanticHit
	if r.cache.Get(ctx, simKey, &cached) {
		r.metrics.IncrementCounterWithLabels("cache.hits", 1, map[string]string{"kind": "similarity"})
		if len(cached) > q.Limit {
			cached = cached[:q.Limit]
		}
		return cached, nil
	}

	candidates, err := r.selectCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	hits := r.scoreCandidates(ctx, q, candidates)

	if q.Location != nil && q.RadiusKM > 0 {
		kept := hits[:0]
		for _, h := range hits {
			c := h.Business.Address.Coordinates
			if c == nil {
				continue
			}
			d := geo.HaversineMeters(q.Location.Lat, q.Location.Lng, c.Lat, c.Lng)
			if d <= q.RadiusKM*1000 {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Business.ID < hits[j].Business.ID
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	r.cache.Set(ctx, simKey, hits, cache.TTLSimilaritySet)
	r.metrics.RecordGauge("retrieval.semantic.hits", float64(len(hits)), nil)
	return hits, nil
}

// selectCandidates picks the candidate business set, cached for 10 minutes
// under the coarse (category, location) key.
func (r *SemanticRetriever) selectCandidates(ctx context.Context, q SemanticQuery) ([]*models.Business, error) {
	lat2, lng2 := "", ""
	radius := 0.0
	if q.Location != nil {
		lat2 = fmt.Sprintf("%.2f", q.Location.Lat)
		lng2 = fmt.Sprintf("%.2f", q.Location.Lng)
		radius = q.RadiusKM
	}
	candKey := cache.CandidateKey(q.CategoryID, lat2, lng2, radius)

	var cachedIDs []string
	if r.cache.Get(ctx, candKey, &cachedIDs) {
		r.metrics.IncrementCounterWithLabels("cache.hits", 1, map[string]string{"kind": "candidates"})
		return r.fetchBusinesses(ctx, cachedIDs, q)
	}

	var (
		businesses []*models.Business
		err        error
	)
	switch {
	case q.CategoryID != "":
		businesses, err = r.store.QueryByCategoryAndCity(ctx, q.CategoryID, q.City, maxCandidates)
	case q.City != "":
		businesses, err = r.store.QueryByCity(ctx, q.City, maxCandidates)
	default:
		var ids []string
		ids, err = r.store.ListVectorBusinessIDs(ctx, r.version)
		if err == nil {
			if len(ids) > maxCandidates {
				ids = ids[:maxCandidates]
			}
			businesses, err = r.fetchBusinesses(ctx, ids, q)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("semantic candidate selection: %w", err)
	}

	if q.Location != nil {
		kept := businesses[:0]
		for _, b := range businesses {
			if b.HasCoordinates() {
				kept = append(kept, b)
			}
		}
		businesses = kept
	}

	ids := make([]string, len(businesses))
	for i, b := range businesses {
		ids[i] = b.ID
	}
	r.cache.Set(ctx, candKey, ids, cache.TTLCandidateSet)
	return businesses, nil
}

// fetchBusinesses resolves candidate ids in parallel, dropping failures
func (r *SemanticRetriever) fetchBusinesses(ctx context.Context, ids []string, q SemanticQuery) ([]*models.Business, error) {
	out := make([]*models.Business, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			b, err := r.store.GetBusiness(gctx, id)
			if err != nil {
				r.logger.Warn("Failed to fetch candidate business", map[string]interface{}{
					"business_id": id,
					"error":       err.Error(),
				})
				return nil
			}
			if q.Location != nil && !b.HasCoordinates() {
				return nil
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	kept := out[:0]
	for _, b := range out {
		if b != nil {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

// scoreCandidates fetches vectors and computes similarities in parallel
// micro-batches. Per-candidate failures and dimension mismatches drop the
// candidate, never the call.
func (r *SemanticRetriever) scoreCandidates(ctx context.Context, q SemanticQuery, candidates []*models.Business) []SemanticHit {
	var (
		mu   sync.Mutex
		hits []SemanticHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchConcurrency)

	for start := 0; start < len(candidates); start += r.batchSize {
		end := start + r.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		g.Go(func() error {
			local := make([]SemanticHit, 0, len(batch))
			for _, b := range batch {
				vec, err := r.vectors.GetVector(gctx, b.ID, r.version)
				if err != nil {
					r.logger.Warn("Failed to fetch candidate vector", map[string]interface{}{
						"business_id": b.ID,
						"version":     r.version,
						"error":       err.Error(),
					})
					continue
				}
				if len(vec) != r.dimension {
					r.logger.Warn("Candidate vector dimension mismatch, dropping", map[string]interface{}{
						"business_id": b.ID,
						"expected":    r.dimension,
						"actual":      len(vec),
					})
					continue
				}
				local = append(local, SemanticHit{Business: b, Similarity: Cosine(q.Vector, vec)})
			}
			mu.Lock()
			hits = append(hits, local...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return hits
}

// similarityKey builds the 30-minute result cache key from the vector
// fingerprint and the filter set.
func (r *SemanticRetriever) similarityKey(q SemanticQuery) string {
	n := r.fingerprint
	if len(q.Vector) < n {
		n = len(q.Vector)
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%.6f,", q.Vector[i])
	}
	fingerprint := cache.HashString(sb.String())

	filterRepr := fmt.Sprintf("cat:%s|city:%s", q.CategoryID, strings.ToLower(q.City))
	if q.Location != nil {
		filterRepr += fmt.Sprintf("|loc:%.2f,%.2f|rad:%g", q.Location.Lat, q.Location.Lng, q.RadiusKM)
	}
	return cache.SimilarityKey(fingerprint, cache.HashString(filterRepr))
}

// Cosine computes cosine similarity between two equal-length vectors
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
