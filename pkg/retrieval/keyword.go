// Package retrieval implements the two candidate retrievers and the hybrid
// merger. The keyword retriever scores lexical matches against the business
// store; the semantic retriever scores stored vectors by cosine similarity;
// the merger fuses both lists into one deduplicated, weighted ranking.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/placemesh/placemesh/pkg/store"
)

// KeywordHit is one scored keyword-retrieval candidate. TextScore and
// CategoryRelevance are kept separately so the merger can recompute the
// category contribution under an authoritative classifier category.
type KeywordHit struct {
	Business          *models.Business
	Relevance         float64
	TextScore         float64
	CategoryRelevance float64
}

// KeywordOptions tunes one keyword retrieval call
type KeywordOptions struct {
	Limit int
	// SkipNameValidation keeps candidates whose name does not survive
	// normalization. Off by default; such records are usually junk rows.
	SkipNameValidation bool
}

// KeywordRetriever scores businesses against the query lexically
type KeywordRetriever struct {
	store    store.BusinessStore
	taxonomy *normalize.Taxonomy
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewKeywordRetriever creates a keyword retriever
func NewKeywordRetriever(s store.BusinessStore, taxonomy *normalize.Taxonomy, logger observability.Logger, metrics observability.MetricsClient) *KeywordRetriever {
	if logger == nil {
		logger = observability.NewLogger("retrieval.keyword")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &KeywordRetriever{store: s, taxonomy: taxonomy, logger: logger, metrics: metrics}
}

// stopPrepositions are stripped before tokenizing the query
var stopPrepositions = map[string]bool{
	"in": true, "near": true, "at": true, "around": true,
}

// stopWords never count as query keywords on their own
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "best": true,
	"good": true, "top": true, "some": true, "any": true, "find": true,
	"show": true, "get": true, "want": true, "need": true,
}

// QueryKeywords tokenizes the query into scoring keywords. Short words and
// stop words are dropped unless they belong to a recognized multi-word
// phrase.
func QueryKeywords(query string) []string {
	lowered := strings.ToLower(query)
	var out []string
	seen := map[string]bool{}
	for _, word := range strings.Fields(lowered) {
		word = strings.Trim(word, ".,!?;:'\"()")
		if word == "" || seen[word] || stopPrepositions[word] {
			continue
		}
		if (len(word) < 3 || stopWords[word]) && !normalize.MatchesPhrase(lowered, word) {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out
}

// Search runs both retrieval passes and returns scored hits sorted by
// relevance descending, truncated to opts.Limit.
func (r *KeywordRetriever) Search(ctx context.Context, query string, opts KeywordOptions) ([]KeywordHit, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	keywords := QueryKeywords(query)
	categoryIDs := normalize.ExtractCategories(r.taxonomy, query)

	candidates := map[string]*models.Business{}
	active := []models.BusinessStatus{models.StatusActive}

	// Name/description/category term pass. The name pass wins duplicate ids.
	if len(keywords) > 0 {
		scanLimit := opts.Limit * 4
		byText, err := r.store.ScanWithContains(ctx,
			[]string{store.FieldName, store.FieldDescription, store.FieldCategory},
			keywords, active, scanLimit)
		if err != nil {
			return nil, fmt.Errorf("keyword text pass: %w", err)
		}
		for _, b := range byText {
			candidates[b.ID] = b
		}
	}

	// Category pass
	for _, id := range categoryIDs {
		byCategory, err := r.store.QueryByCategoryAndCity(ctx, id, "", opts.Limit)
		if err != nil {
			r.logger.Warn("Category pass failed", map[string]interface{}{
				"category": id,
				"error":    err.Error(),
			})
			continue
		}
		for _, b := range byCategory {
			if _, exists := candidates[b.ID]; !exists {
				candidates[b.ID] = b
			}
		}
	}

	hits := make([]KeywordHit, 0, len(candidates))
	for _, b := range candidates {
		if b.Status != models.StatusActive {
			continue
		}
		name, ok := normalize.NormalizeBusinessName(b.Name)
		if !ok {
			if !opts.SkipNameValidation {
				continue
			}
			name = strings.ToLower(b.Name)
		}

		text := textScore(name, strings.ToLower(b.Description), query, keywords)
		category := r.categoryRelevance(b, categoryIDs)
		relevance := CombineRelevance(text, category)
		if relevance <= 0 {
			continue
		}
		hits = append(hits, KeywordHit{
			Business:          b,
			Relevance:         relevance,
			TextScore:         text,
			CategoryRelevance: category,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].Business.ID < hits[j].Business.ID
	})
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	r.metrics.RecordGauge("retrieval.keyword.hits", float64(len(hits)), nil)
	return hits, nil
}

// textScore is the pre-category lexical score:
// 0.6·name_match + 0.2·description_match + keyword_boost.
func textScore(name, description, query string, keywords []string) float64 {
	score := 0.6*matchText(name, query) + 0.2*matchText(description, query)
	score += keywordBoost(name, description, keywords)
	return clamp1(score)
}

// matchText grades how well field matches the whole query
func matchText(field, query string) float64 {
	field = strings.TrimSpace(strings.ToLower(field))
	query = strings.TrimSpace(strings.ToLower(query))
	if field == "" || query == "" {
		return 0
	}
	switch {
	case field == query:
		return 1.0
	case strings.HasPrefix(field, query):
		return 0.9
	case strings.HasPrefix(query, field):
		return 0.8
	}

	words := strings.Fields(query)
	fieldWords := map[string]bool{}
	for _, w := range strings.Fields(field) {
		fieldWords[w] = true
	}
	allWhole, allPartial, anyPartial := true, true, false
	for _, w := range words {
		if !fieldWords[w] {
			allWhole = false
		}
		if strings.Contains(field, w) {
			anyPartial = true
		} else {
			allPartial = false
		}
	}
	switch {
	case allWhole:
		return 0.7
	case allPartial:
		return 0.5
	case strings.Contains(field, query):
		return 0.3
	case anyPartial:
		return 0.2
	}
	return 0
}

// keywordBoost rewards individual query keywords found in the name or
// description, capped at 0.25.
func keywordBoost(name, description string, keywords []string) float64 {
	nameWords := map[string]bool{}
	for _, w := range strings.Fields(name) {
		nameWords[w] = true
	}
	boost := 0.0
	for _, kw := range keywords {
		if len(kw) < 3 {
			continue
		}
		switch {
		case nameWords[kw]:
			boost += 0.15
		case strings.Contains(name, kw):
			boost += 0.10
		}
		if strings.Contains(description, kw) {
			boost += 0.05
		}
	}
	if boost > 0.25 {
		boost = 0.25
	}
	return boost
}

// categoryRelevance grades the best taxonomy match between the business's
// categories and the categories extracted from the query.
func (r *KeywordRetriever) categoryRelevance(b *models.Business, queryCategories []string) float64 {
	best := 0.0
	for _, qc := range queryCategories {
		for _, bc := range businessCategories(b) {
			var score float64
			switch {
			case bc == qc:
				score = 0.7
			case r.isParentOf(qc, bc) || r.isParentOf(bc, qc):
				score = 0.4
			case r.taxonomy.Root(bc) == r.taxonomy.Root(qc):
				score = 0.3
			}
			if score > best {
				best = score
			}
		}
	}
	return best
}

// AuthorityCategoryRelevance grades a business against an authoritative
// classifier category: only exact matches and direct parent/child
// relationships contribute; sibling taxonomy hits are discarded.
func (r *KeywordRetriever) AuthorityCategoryRelevance(b *models.Business, authoritative string) float64 {
	if authoritative == "" || authoritative == normalize.RootGeneral {
		return 0
	}
	best := 0.0
	for _, bc := range businessCategories(b) {
		var score float64
		switch {
		case bc == authoritative:
			score = 0.7
		case r.isParentOf(authoritative, bc) || r.isParentOf(bc, authoritative):
			score = 0.4
		}
		if score > best {
			best = score
		}
	}
	return best
}

func (r *KeywordRetriever) isParentOf(parent, child string) bool {
	p, ok := r.taxonomy.Parent(child)
	return ok && p == parent
}

func businessCategories(b *models.Business) []string {
	out := make([]string, 0, 2)
	if b.Subcategory != "" {
		out = append(out, b.Subcategory)
	}
	if b.Category != "" {
		out = append(out, b.Category)
	}
	return out
}

// CombineRelevance folds the category signal into the lexical score. A
// strong category match dominates; a moderate one blends; a weak one only
// acts as a floor.
func CombineRelevance(text, category float64) float64 {
	switch {
	case category >= 0.7:
		return clamp1(category + 0.2*text)
	case category >= 0.4:
		return clamp1(maxf(text, 0.7*category+0.3*text))
	default:
		return clamp1(maxf(text, category))
	}
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
