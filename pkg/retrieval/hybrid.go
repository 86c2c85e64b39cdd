package retrieval

import (
	"sort"
	"strings"

	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
)

// Default fusion weights
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// MergeOptions tunes one hybrid merge
type MergeOptions struct {
	SemanticWeight float64
	KeywordWeight  float64
	// AuthorityCategory, when set, is a classifier category with confidence
	// at or above 0.7. Keyword category signals are recomputed against it;
	// the reserved "general" root drops category contributions entirely.
	AuthorityCategory string
	// Retriever supplies the category recomputation for the authority
	// override. Required when AuthorityCategory is set.
	Retriever *KeywordRetriever
}

// Merge fuses semantic and keyword hits into one deduplicated list sorted
// by combined score descending. Every business id appears at most once;
// per-id scores are the max over input occurrences.
func Merge(semantic []SemanticHit, keyword []KeywordHit, opts MergeOptions) []*models.HybridResult {
	if opts.SemanticWeight <= 0 && opts.KeywordWeight <= 0 {
		opts.SemanticWeight = DefaultSemanticWeight
		opts.KeywordWeight = DefaultKeywordWeight
	}

	merged := map[string]*models.HybridResult{}

	key := func(b *models.Business) string {
		if b.ID != "" {
			return b.ID
		}
		return strings.ToLower(b.Name) + "|" + strings.ToLower(b.City())
	}

	for _, h := range semantic {
		score := clamp1((h.Similarity + 1) / 2)
		k := key(h.Business)
		if existing, ok := merged[k]; ok {
			if score > existing.SemanticScore {
				existing.SemanticScore = score
			}
			continue
		}
		merged[k] = &models.HybridResult{Business: h.Business, SemanticScore: score}
	}

	for _, h := range keyword {
		score := clamp1(h.Relevance)
		if opts.AuthorityCategory != "" {
			score = clamp1(authorityRelevance(h, opts))
		}
		k := key(h.Business)
		if existing, ok := merged[k]; ok {
			if score > existing.KeywordScore {
				existing.KeywordScore = score
			}
			continue
		}
		merged[k] = &models.HybridResult{Business: h.Business, KeywordScore: score}
	}

	out := make([]*models.HybridResult, 0, len(merged))
	for _, h := range merged {
		h.Combined = clamp1(opts.SemanticWeight*h.SemanticScore + opts.KeywordWeight*h.KeywordScore)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Combined != out[j].Combined {
			return out[i].Combined > out[j].Combined
		}
		return out[i].Business.ID < out[j].Business.ID
	})
	return out
}

// authorityRelevance recomputes a keyword hit's relevance under an
// authoritative classifier category.
func authorityRelevance(h KeywordHit, opts MergeOptions) float64 {
	if opts.AuthorityCategory == normalize.RootGeneral {
		return CombineRelevance(h.TextScore, 0)
	}
	if opts.Retriever == nil {
		return h.Relevance
	}
	category := opts.Retriever.AuthorityCategoryRelevance(h.Business, opts.AuthorityCategory)
	return CombineRelevance(h.TextScore, category)
}
