// Package pipeline is the per-request orchestrator. It sequences sanitize,
// cache probe, NLP analysis, location resolution, embedding, hybrid
// retrieval, filtering, and ranking, recording per-step telemetry. Only an
// invalid query aborts the request; every other failure degrades to the
// stage's declared fallback and is reported in the performance record.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/placemesh/placemesh/pkg/cache"
	"github.com/placemesh/placemesh/pkg/embedding"
	"github.com/placemesh/placemesh/pkg/filter"
	"github.com/placemesh/placemesh/pkg/geo"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/nlp"
	"github.com/placemesh/placemesh/pkg/normalize"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/placemesh/placemesh/pkg/ranking"
	"github.com/placemesh/placemesh/pkg/ratelimit"
	"github.com/placemesh/placemesh/pkg/resilience"
	"github.com/placemesh/placemesh/pkg/retrieval"
)

// Pipeline errors surfaced to the caller
var (
	ErrInvalidQuery     = errors.New("invalid query")
	ErrLocationRequired = errors.New("location required")
)

// maxQueryLen is the sanitization truncation bound in runes
const maxQueryLen = 500

// authorityThreshold is the classifier confidence at which its category
// overrides lexical guesses downstream.
const authorityThreshold = 0.7

// Config wires the orchestrator's collaborators
type Config struct {
	Cache     cache.Cache
	Analyzer  *nlp.Analyzer
	Embedder  embedding.Provider
	Keyword   *retrieval.KeywordRetriever
	Semantic  *retrieval.SemanticRetriever
	Filter    *filter.Stage
	Ranker    *ranking.Ranker
	Taxonomy  *normalize.Taxonomy
	Limiter   *ratelimit.Limiter
	Harness   *resilience.Harness
	Geocoder  geo.Geocoder         // optional
	Profiles  geo.UserProfileStore // optional
	IPLocator geo.IPLocator        // optional
	Logger    observability.Logger
	Metrics   observability.MetricsClient

	// RequestTimeout is the end-to-end budget; on expiry the response
	// carries whatever stages completed.
	RequestTimeout time.Duration
	// RetrievalLimit is the per-retriever candidate limit
	RetrievalLimit int
	// PageSize bounds the returned first page
	PageSize int
	// NearMeRadiusM is the radius applied to "near me" queries
	NearMeRadiusM float64
	// StrictCategory disables the category filter guardrail
	StrictCategory bool
}

// Pipeline executes search requests
type Pipeline struct {
	cfg     Config
	logger  observability.Logger
	metrics observability.MetricsClient
}

// Request is one search invocation
type Request struct {
	Query  string
	UserID string
	IP     string
	// Filters are caller-declared and take precedence over derived ones
	Filters *models.Filters
	// Geolocation is a device-reported coordinate, when the caller has one
	Geolocation *geo.Point
}

// New creates a pipeline. Cache, Analyzer, Embedder, Keyword, Semantic,
// Filter, Ranker, and Taxonomy are required.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Cache == nil || cfg.Analyzer == nil || cfg.Embedder == nil ||
		cfg.Keyword == nil || cfg.Semantic == nil || cfg.Filter == nil ||
		cfg.Ranker == nil || cfg.Taxonomy == nil {
		return nil, fmt.Errorf("pipeline: missing required collaborator")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger("pipeline")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}
	if cfg.Harness == nil {
		cfg.Harness = resilience.NewHarness(cfg.Logger, cfg.Metrics)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = 50
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.NearMeRadiusM <= 0 {
		cfg.NearMeRadiusM = 5000
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger, metrics: cfg.Metrics}, nil
}

// cachedResponse is the full-result cache entry
type cachedResponse struct {
	Results  []*models.RankedResult `json:"results"`
	Total    int                    `json:"total"`
	Analysis *models.QueryAnalysis  `json:"analysis"`
}

// ProcessQuery runs the full pipeline for one query. Only ErrInvalidQuery
// produces a non-nil error; every other failure degrades and is reported
// inside the response's performance record.
func (p *Pipeline) ProcessQuery(ctx context.Context, req Request) (*models.SearchResponse, error) {
	started := time.Now()
	perf := &models.Performance{RequestID: uuid.New().String()}
	ctx, span := observability.StartSpan(ctx, "pipeline.process_query")
	defer span.End()
	span.SetAttribute("request_id", perf.RequestID)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	ctx = ratelimit.ContextWithPrincipal(ctx, ratelimit.Principal{UserID: req.UserID, IP: req.IP})

	// Step 1: validate and sanitize
	query, err := sanitizeQuery(req.Query)
	if err != nil {
		return nil, err
	}
	perf.Steps = append(perf.Steps, models.StepTiming{Name: "sanitize", Duration: time.Since(started)})

	filters := models.Filters{}
	if req.Filters != nil {
		filters = *req.Filters
	}
	filterRepr := filterKey(filters)

	// Step 2: full-result cache probe
	probeStart := time.Now()
	if resp, ok := p.probeResultCache(ctx, query, filterRepr); ok {
		perf.CacheHits++
		perf.Steps = append(perf.Steps, models.StepTiming{Name: "cache_probe", Duration: time.Since(probeStart), FromCache: true})
		perf.Total = time.Since(started)
		resp.Performance = perf
		return resp, nil
	}
	perf.Steps = append(perf.Steps, models.StepTiming{Name: "cache_probe", Duration: time.Since(probeStart)})

	// Step 3: normalize the query string
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	// Step 4: analyze
	analyzeStart := time.Now()
	sess := nlp.Session{UserID: req.UserID, IP: req.IP}
	analysis, stats := p.cfg.Analyzer.AnalyzeQuery(ctx, normalized, sess)
	perf.ModelCalls += stats.ModelCalls
	perf.CacheHits += stats.CacheHits
	perf.Errors = append(perf.Errors, stats.Errors...)
	perf.Steps = append(perf.Steps, models.StepTiming{
		Name: "analyze", Duration: time.Since(analyzeStart),
		FromCache: stats.CacheHits > 0, Error: firstError(stats.Errors),
	})

	// Steps 5-6: derive filters from entities, resolve location
	locStart := time.Now()
	nearMe := isNearMeQuery(normalized)
	p.deriveFilters(&filters, analysis)
	loc := p.resolveLocation(ctx, req, analysis, &filters, nearMe, perf)
	analysis.Location = loc
	perf.Steps = append(perf.Steps, models.StepTiming{Name: "resolve_location", Duration: time.Since(locStart)})

	if nearMe && loc == nil {
		perf.Errors = append(perf.Errors, "location: near-me query with no resolvable location")
		perf.PartialResults = true
		perf.Total = time.Since(started)
		return &models.SearchResponse{
			Results: []*models.RankedResult{}, Analysis: analysis, Performance: perf,
		}, nil
	}

	// Step 7: embed
	embedStart := time.Now()
	vector, embedded := p.embedQuery(ctx, normalized, perf)
	perf.Steps = append(perf.Steps, models.StepTiming{
		Name: "embed", Duration: time.Since(embedStart),
		Error: errorUnless(embedded, "embedding unavailable, keyword-only retrieval"),
	})

	// Step 8: retrieve
	retrieveStart := time.Now()
	merged := p.retrieve(ctx, normalized, vector, embedded, analysis, filters, loc, perf)
	perf.Steps = append(perf.Steps, models.StepTiming{Name: "retrieve", Duration: time.Since(retrieveStart)})

	// Step 9: filter
	filterStart := time.Now()
	filtered := p.cfg.Filter.Apply(merged, filters, loc, filter.Options{StrictCategory: p.cfg.StrictCategory})
	perf.Steps = append(perf.Steps, models.StepTiming{Name: "filter", Duration: time.Since(filterStart)})

	// Step 10: rank
	rankStart := time.Now()
	var rankLoc *models.ResolvedLocation
	if loc != nil && (loc.Lat != 0 || loc.Lng != 0) {
		rankLoc = loc
	}
	ranked := p.cfg.Ranker.Rank(filtered, normalized, rankLoc)
	perf.Steps = append(perf.Steps, models.StepTiming{Name: "rank", Duration: time.Since(rankStart)})

	total := len(ranked)
	if len(ranked) > p.cfg.PageSize {
		ranked = ranked[:p.cfg.PageSize]
	}

	if ctx.Err() != nil {
		perf.Errors = append(perf.Errors, "timeout: request budget exceeded")
	}
	perf.PartialResults = len(perf.Errors) > 0
	perf.Total = time.Since(started)

	resp := &models.SearchResponse{
		Results:     ranked,
		Total:       total,
		Analysis:    analysis,
		Performance: perf,
	}

	// Step 11: async cache writes; never blocks the response
	if ctx.Err() == nil && !perf.PartialResults {
		go p.writeResultCache(query, filterRepr, resp)
	}

	p.metrics.RecordLatency("pipeline.process_query", time.Since(started))
	p.metrics.IncrementCounter("pipeline.requests", 1)
	return resp, nil
}

// sanitizeQuery trims, truncates to 500 runes, and strips control and
// markup characters.
func sanitizeQuery(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	runes := []rune(trimmed)
	if len(runes) > maxQueryLen {
		runes = runes[:maxQueryLen]
	}
	var sb strings.Builder
	for _, r := range runes {
		if r < 0x20 || r == 0x7f {
			continue
		}
		switch r {
		case '<', '>', '{', '}', '`':
			continue
		}
		sb.WriteRune(r)
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("%w: query empty after sanitization", ErrInvalidQuery)
	}
	return out, nil
}

// filterKey serializes filters deterministically for cache keys
func filterKey(f models.Filters) string {
	data, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(data)
}

func (p *Pipeline) probeResultCache(ctx context.Context, query, filterRepr string) (*models.SearchResponse, bool) {
	var entry cachedResponse
	if !p.cfg.Cache.Get(ctx, cache.QueryKey(query, filterRepr, "results"), &entry) {
		return nil, false
	}
	if entry.Analysis == nil {
		return nil, false
	}
	return &models.SearchResponse{
		Results:  entry.Results,
		Total:    entry.Total,
		Analysis: entry.Analysis,
	}, true
}

func (p *Pipeline) writeResultCache(query, filterRepr string, resp *models.SearchResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.cfg.Cache.Set(ctx, cache.QueryKey(query, filterRepr, "results"), cachedResponse{
		Results:  resp.Results,
		Total:    resp.Total,
		Analysis: resp.Analysis,
	}, cache.TTLSearchResults)
	p.cfg.Cache.Set(ctx, cache.QueryKey(query, filterRepr, "analysis"), resp.Analysis, cache.TTLQueryAnalysis)
}

// deriveFilters fills filter fields from the analysis without overriding
// anything the caller declared explicitly.
func (p *Pipeline) deriveFilters(f *models.Filters, analysis *models.QueryAnalysis) {
	if f.Category == "" && analysis.Category.Primary != normalize.RootGeneral {
		f.Category = analysis.Category.Primary
	}
	// Caller-declared categories may be synonyms or subcategory ids; fold
	// them to the canonical taxonomy id the retrievers and filter expect.
	if f.Category != "" {
		if id, ok := normalize.NormalizeCategory(p.cfg.Taxonomy, f.Category); ok {
			f.Category = id
		}
	}
	if len(f.Prices) == 0 {
		for _, raw := range analysis.Entities.Prices {
			if tier, ok := normalize.NormalizePriceRange(raw); ok {
				f.Prices = append(f.Prices, tier)
			}
		}
	}
	if f.City == "" {
		for _, l := range analysis.Entities.Locations {
			if city, ok := normalize.KnownCity(l); ok {
				f.City = city
				break
			}
		}
	}
}

// embedQuery obtains the query vector through retry; on failure the zero
// vector stands in and retrieval degrades to keyword-only.
func (p *Pipeline) embedQuery(ctx context.Context, query string, perf *models.Performance) ([]float32, bool) {
	vec, err := resilience.RetryWithBackoff(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) ([]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return p.cfg.Embedder.Embed(callCtx, query)
	})
	if err != nil {
		kind := resilience.Classify(err)
		perf.Errors = append(perf.Errors, fmt.Sprintf("embedding: %s (%s)", err.Error(), kind))
		p.cfg.Harness.Record("embedding.query", err)
		p.logger.Warn("Embedding failed, falling back to keyword-only retrieval", map[string]interface{}{
			"kind":  string(kind),
			"error": err.Error(),
		})
		return embedding.ZeroVector(p.cfg.Embedder.Dimension()), false
	}
	perf.ModelCalls++
	return vec, true
}

// retrieve runs the keyword and semantic retrievers, in parallel when a
// vector is available, and merges through the hybrid scorer.
func (p *Pipeline) retrieve(ctx context.Context, query string, vector []float32, embedded bool, analysis *models.QueryAnalysis, filters models.Filters, loc *models.ResolvedLocation, perf *models.Performance) []*models.HybridResult {
	opts := retrieval.MergeOptions{Retriever: p.cfg.Keyword}
	if analysis.Category.Confidence >= authorityThreshold {
		opts.AuthorityCategory = analysis.Category.Primary
	}

	var (
		keywordHits  []retrieval.KeywordHit
		semanticHits []retrieval.SemanticHit
		keywordErr   error
		semanticErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordHits, keywordErr = p.cfg.Keyword.Search(gctx, query, retrieval.KeywordOptions{Limit: p.cfg.RetrievalLimit})
		return nil
	})
	if embedded {
		g.Go(func() error {
			q := retrieval.SemanticQuery{
				Vector: vector,
				City:   filters.City,
				Limit:  p.cfg.RetrievalLimit,
			}
			if analysis.Category.Primary != normalize.RootGeneral {
				q.CategoryID = analysis.Category.Primary
			}
			if loc != nil && filters.MaxDistanceM > 0 && (loc.Lat != 0 || loc.Lng != 0) {
				q.Location = &geo.Point{Lat: loc.Lat, Lng: loc.Lng}
				q.RadiusKM = filters.MaxDistanceM / 1000
			}
			semanticHits, semanticErr = p.cfg.Semantic.Search(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	if keywordErr != nil {
		perf.Errors = append(perf.Errors, fmt.Sprintf("keyword retrieval: %s", keywordErr.Error()))
		keywordHits = nil
	}
	if semanticErr != nil {
		perf.Errors = append(perf.Errors, fmt.Sprintf("semantic retrieval: %s", semanticErr.Error()))
		semanticHits = nil
	}

	return retrieval.Merge(semanticHits, keywordHits, opts)
}

// LocationRequired reports whether the response is empty because a near-me
// query had no resolvable location. The HTTP layer maps this to
// ErrLocationRequired instead of an empty success.
func LocationRequired(resp *models.SearchResponse) bool {
	if resp == nil || len(resp.Results) > 0 || resp.Performance == nil {
		return false
	}
	for _, e := range resp.Performance.Errors {
		if strings.HasPrefix(e, "location:") {
			return true
		}
	}
	return false
}

// CriticalFailure reports whether the response is empty because even the
// last-resort keyword path failed or the request budget expired before
// retrieval. Degraded-but-served responses are not critical.
func CriticalFailure(resp *models.SearchResponse) bool {
	if resp == nil || len(resp.Results) > 0 || resp.Performance == nil {
		return false
	}
	for _, e := range resp.Performance.Errors {
		if strings.HasPrefix(e, "keyword retrieval:") || strings.HasPrefix(e, "timeout:") {
			return true
		}
	}
	return false
}

func isNearMeQuery(query string) bool {
	for _, marker := range []string{"near me", "nearby", "around me", "close to me", "close by"} {
		if strings.Contains(query, marker) {
			return true
		}
	}
	return false
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0]
}

func errorUnless(ok bool, msg string) string {
	if ok {
		return ""
	}
	return msg
}
