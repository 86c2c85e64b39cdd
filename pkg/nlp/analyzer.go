package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/placemesh/placemesh/pkg/ratelimit"
	"github.com/placemesh/placemesh/pkg/resilience"
)

// Session identifies the caller for rate-limit accounting
type Session struct {
	UserID string
	IP     string
}

// Config contains the analyzer dependencies and tuning
type Config struct {
	Client   LLMClient
	Taxonomy *normalize.Taxonomy
	Limiter  *ratelimit.Limiter
	Harness  *resilience.Harness
	Breaker  *resilience.Breaker
	Logger   observability.Logger
	Metrics  observability.MetricsClient

	// CallTimeout is the hard per-call model timeout
	CallTimeout time.Duration
	// MemoTTL is how long per-task results are memoized in process
	MemoTTL  time.Duration
	MemoSize int
	Retry    resilience.RetryConfig
}

// Analyzer runs the three NLP sub-tasks with memoization and degradation.
// Safe for concurrent use. Create with NewAnalyzer and release with
// Shutdown.
type Analyzer struct {
	client   LLMClient
	taxonomy *normalize.Taxonomy
	limiter  *ratelimit.Limiter
	harness  *resilience.Harness
	breaker  *resilience.Breaker
	logger   observability.Logger
	metrics  observability.MetricsClient

	callTimeout time.Duration
	retry       resilience.RetryConfig

	intentMemo   *expirable.LRU[string, models.IntentResult]
	categoryMemo *expirable.LRU[string, models.CategoryResult]
	entityMemo   *expirable.LRU[string, models.Entities]

	modelCalls atomic.Int64
}

// Stats summarizes one AnalyzeQuery run
type Stats struct {
	ModelCalls int
	CacheHits  int
	Errors     []string
}

// NewAnalyzer creates an analyzer. Client and Taxonomy are required.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if cfg.Taxonomy == nil {
		return nil, fmt.Errorf("taxonomy is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger("nlp")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}
	if cfg.Harness == nil {
		cfg.Harness = resilience.NewHarness(cfg.Logger, cfg.Metrics)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MemoTTL <= 0 {
		cfg.MemoTTL = 24 * time.Hour
	}
	if cfg.MemoSize <= 0 {
		cfg.MemoSize = 4096
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	return &Analyzer{
		client:       cfg.Client,
		taxonomy:     cfg.Taxonomy,
		limiter:      cfg.Limiter,
		harness:      cfg.Harness,
		breaker:      cfg.Breaker,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		callTimeout:  cfg.CallTimeout,
		retry:        cfg.Retry,
		intentMemo:   expirable.NewLRU[string, models.IntentResult](cfg.MemoSize, nil, cfg.MemoTTL),
		categoryMemo: expirable.NewLRU[string, models.CategoryResult](cfg.MemoSize, nil, cfg.MemoTTL),
		entityMemo:   expirable.NewLRU[string, models.Entities](cfg.MemoSize, nil, cfg.MemoTTL),
	}, nil
}

// Shutdown releases analyzer resources
func (a *Analyzer) Shutdown() {
	a.intentMemo.Purge()
	a.categoryMemo.Purge()
	a.entityMemo.Purge()
}

// ModelCalls returns the total number of model invocations made
func (a *Analyzer) ModelCalls() int64 {
	return a.modelCalls.Load()
}

func memoKey(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// DetectIntent classifies the query intent. The bool reports a memo hit.
func (a *Analyzer) DetectIntent(ctx context.Context, query string, sess Session) (models.IntentResult, bool, error) {
	key := memoKey(query)
	if cached, ok := a.intentMemo.Get(key); ok {
		return cached, true, nil
	}

	raw, err := a.invoke(ctx, sess, intentPrompt(query), intentSystem, 128)
	if err != nil {
		return models.IntentResult{}, false, err
	}

	result := parseIntent(raw)
	a.intentMemo.Add(key, result)
	return result, false, nil
}

func parseIntent(raw string) models.IntentResult {
	body, ok := extractJSON(raw)
	if !ok {
		return models.IntentResult{Intent: models.IntentUnknown}
	}
	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return models.IntentResult{Intent: models.IntentUnknown}
	}
	intent := strings.ToLower(strings.TrimSpace(parsed.Intent))
	if !models.ValidIntent(intent) {
		intent = string(models.IntentUnknown)
	}
	return models.IntentResult{
		Intent:     models.Intent(intent),
		Confidence: clamp01(parsed.Confidence),
	}
}

// ClassifyCategory maps the query to a taxonomy category. Results with
// confidence below 0.3 collapse to the reserved "general" root.
func (a *Analyzer) ClassifyCategory(ctx context.Context, query string, sess Session) (models.CategoryResult, bool, error) {
	key := memoKey(query)
	if cached, ok := a.categoryMemo.Get(key); ok {
		return cached, true, nil
	}

	raw, err := a.invoke(ctx, sess, categoryPrompt(query, a.taxonomy.RootIDs()), categorySystem, 256)
	if err != nil {
		return models.CategoryResult{}, false, err
	}

	result := a.parseCategory(raw)
	if result.Confidence < 0.5 {
		a.logger.Info("Low-confidence category classification", map[string]interface{}{
			"query":      query,
			"category":   result.Primary,
			"confidence": result.Confidence,
		})
	}
	a.categoryMemo.Add(key, result)
	return result, false, nil
}

func (a *Analyzer) parseCategory(raw string) models.CategoryResult {
	fallback := models.CategoryResult{Primary: normalize.RootGeneral}
	body, ok := extractJSON(raw)
	if !ok {
		return fallback
	}
	var parsed struct {
		Category     string   `json:"category"`
		Confidence   float64  `json:"confidence"`
		Alternatives []string `json:"alternatives"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return fallback
	}

	primary, ok := normalize.NormalizeCategory(a.taxonomy, parsed.Category)
	conf := clamp01(parsed.Confidence)
	if !ok || conf < 0.3 {
		return models.CategoryResult{Primary: normalize.RootGeneral, Confidence: conf}
	}

	var alts []string
	for _, alt := range parsed.Alternatives {
		if id, ok := normalize.NormalizeCategory(a.taxonomy, alt); ok && id != primary {
			alts = append(alts, id)
		}
		if len(alts) == 3 {
			break
		}
	}
	return models.CategoryResult{Primary: primary, Confidence: conf, Alternatives: alts}
}

// ExtractEntities pulls normalized entity lists out of the query
func (a *Analyzer) ExtractEntities(ctx context.Context, query string, sess Session) (models.Entities, bool, error) {
	key := memoKey(query)
	if cached, ok := a.entityMemo.Get(key); ok {
		return cached, true, nil
	}

	raw, err := a.invoke(ctx, sess, entityPrompt(query), entitySystem, 384)
	if err != nil {
		return models.Entities{}, false, err
	}

	result := a.parseEntities(raw)
	a.entityMemo.Add(key, result)
	return result, false, nil
}

func (a *Analyzer) parseEntities(raw string) models.Entities {
	body, ok := extractJSON(raw)
	if !ok {
		return emptyEntities()
	}
	var parsed struct {
		Locations     []string `json:"locations"`
		BusinessNames []string `json:"business_names"`
		Times         []string `json:"times"`
		Prices        []string `json:"prices"`
		Features      []string `json:"features"`
		Confidence    float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return emptyEntities()
	}

	return models.Entities{
		Locations: dedupe(parsed.Locations, func(s string) (string, bool) {
			if canonical, ok := normalize.NormalizeLocationName(s); ok {
				return canonical, true
			}
			trimmed := strings.TrimSpace(s)
			return trimmed, trimmed != ""
		}),
		BusinessNames: dedupe(parsed.BusinessNames, func(s string) (string, bool) {
			return normalize.NormalizeBusinessName(s)
		}),
		Times: dedupe(parsed.Times, lowerTrim),
		Prices: dedupe(parsed.Prices, func(s string) (string, bool) {
			tier, ok := normalize.NormalizePriceRange(s)
			return string(tier), ok
		}),
		Features:   dedupe(parsed.Features, lowerTrim),
		Confidence: clamp01(parsed.Confidence),
	}
}

// AnalyzeQuery runs intent, category, and entity extraction in parallel.
// A failed sub-task never cancels its siblings; its slot is filled with a
// heuristic default and the error is reported in Stats.
func (a *Analyzer) AnalyzeQuery(ctx context.Context, query string, sess Session) (*models.QueryAnalysis, Stats) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		stats    Stats
		intent   models.IntentResult
		category models.CategoryResult
		entities models.Entities
		degraded bool
	)

	callsBefore := a.modelCalls.Load()

	record := func(task string, fromMemo bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		if fromMemo {
			stats.CacheHits++
		}
		if err != nil {
			degraded = true
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %s (%s)", task, err.Error(), resilience.Classify(err)))
			a.harness.Record("nlp."+task, err)
		}
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		res, fromMemo, err := a.DetectIntent(ctx, query, sess)
		if err != nil {
			res = heuristicIntent(query)
		}
		intent = res
		record("intent", fromMemo, err)
	}()
	go func() {
		defer wg.Done()
		res, fromMemo, err := a.ClassifyCategory(ctx, query, sess)
		if err != nil {
			res = a.HeuristicCategory(query)
		}
		category = res
		record("category", fromMemo, err)
	}()
	go func() {
		defer wg.Done()
		res, fromMemo, err := a.ExtractEntities(ctx, query, sess)
		if err != nil {
			res = emptyEntities()
		}
		entities = res
		record("entities", fromMemo, err)
	}()
	wg.Wait()

	stats.ModelCalls = int(a.modelCalls.Load() - callsBefore)

	analysis := &models.QueryAnalysis{
		Query:      query,
		Intent:     intent,
		Category:   category,
		Entities:   entities,
		Confidence: 0.3*intent.Confidence + 0.4*category.Confidence + 0.3*entities.Confidence,
		Degraded:   degraded,
	}
	return analysis, stats
}

// HeuristicCategory derives a category from lexical taxonomy hits alone.
// Used when the classifier model is unavailable.
func (a *Analyzer) HeuristicCategory(query string) models.CategoryResult {
	ids := normalize.ExtractCategories(a.taxonomy, query)
	if len(ids) == 0 {
		return models.CategoryResult{Primary: normalize.RootGeneral, Confidence: 0}
	}
	primary := a.taxonomy.Root(ids[0])
	var alts []string
	for _, id := range ids[1:] {
		root := a.taxonomy.Root(id)
		if root != primary && len(alts) < 3 {
			alts = append(alts, root)
		}
	}
	return models.CategoryResult{Primary: primary, Confidence: 0.4, Alternatives: alts}
}

func heuristicIntent(query string) models.IntentResult {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "book") || strings.Contains(q, "reserve") || strings.Contains(q, "appointment"):
		return models.IntentResult{Intent: models.IntentBook, Confidence: 0.5}
	case strings.Contains(q, " vs ") || strings.Contains(q, "compare"):
		return models.IntentResult{Intent: models.IntentCompare, Confidence: 0.5}
	case strings.Contains(q, "review"):
		return models.IntentResult{Intent: models.IntentReview, Confidence: 0.5}
	case strings.Contains(q, "directions") || strings.Contains(q, "how to get to"):
		return models.IntentResult{Intent: models.IntentDirections, Confidence: 0.5}
	default:
		return models.IntentResult{Intent: models.IntentSearch, Confidence: 0.5}
	}
}

// invoke admits the call through the rate limiter, then runs the model
// call through the circuit breaker with retry and the hard per-call
// timeout.
func (a *Analyzer) invoke(ctx context.Context, sess Session, prompt, system string, maxTokens int) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.WaitForSlot(ctx, sess.UserID, sess.IP); err != nil {
			return "", fmt.Errorf("model admission: %w", err)
		}
	}

	call := func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
		a.modelCalls.Add(1)
		a.metrics.IncrementCounter("nlp.model_calls", 1)
		return a.client.Generate(callCtx, prompt, system, maxTokens, 0.0)
	}

	if a.breaker != nil {
		wrapped := call
		call = func(ctx context.Context) (string, error) {
			return resilience.Execute(a.breaker, ctx, wrapped)
		}
	}

	return resilience.RetryWithBackoff(ctx, a.retry, call)
}

func emptyEntities() models.Entities {
	return models.Entities{
		Locations:     []string{},
		BusinessNames: []string{},
		Times:         []string{},
		Prices:        []string{},
		Features:      []string{},
	}
}

func dedupe(in []string, norm func(string) (string, bool)) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		v, ok := norm(s)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func lowerTrim(s string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	return v, v != ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
