// Package ranking scores filtered results into their final order. Scoring
// is a weighted sum of six factors; relevance carries half the weight and
// the rest reward proximity, reputation, and freshness.
package ranking

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/placemesh/placemesh/pkg/geo"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/placemesh/placemesh/pkg/retrieval"
)

// Factor weights. They sum to 1.0.
const (
	WeightRelevance = 0.50
	WeightDistance  = 0.15
	WeightRating    = 0.15
	WeightReviews   = 0.10
	WeightVerified  = 0.05
	WeightRecency   = 0.05
)

// distanceNormM is the distance at which the proximity factor reaches zero
const distanceNormM = 50000.0

// recencyWindowDays is the update age at which the recency factor reaches
// zero
const recencyWindowDays = 30.0

// Ranker orders filtered results by the weighted factor score
type Ranker struct {
	logger  observability.Logger
	metrics observability.MetricsClient

	now func() time.Time
}

// NewRanker creates a ranker
func NewRanker(logger observability.Logger, metrics observability.MetricsClient) *Ranker {
	if logger == nil {
		logger = observability.NewLogger("ranking")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Ranker{logger: logger, metrics: metrics, now: time.Now}
}

// Rank scores each result and returns them sorted by score descending,
// ties broken by rating descending then name ascending. When loc is
// non-nil the business's DistanceMeters field is populated.
func (r *Ranker) Rank(results []*models.HybridResult, query string, loc *models.ResolvedLocation) []*models.RankedResult {
	keywords := retrieval.QueryKeywords(query)
	now := r.now()

	ranked := make([]*models.RankedResult, 0, len(results))
	for _, h := range results {
		b := h.Business

		relevance := clamp1(h.Combined + nameBoost(b, keywords))

		distance := 0.0
		if loc != nil && b.HasCoordinates() {
			d := geo.HaversineMeters(loc.Lat, loc.Lng, b.Address.Coordinates.Lat, b.Address.Coordinates.Lng)
			b.DistanceMeters = d
			distance = math.Max(0, 1-d/distanceNormM)
		}

		rating := clamp1(b.Rating / 5)
		reviews := math.Min(1, math.Log10(float64(b.ReviewCount)+1)/3)
		verified := 0.0
		if b.Verified {
			verified = 1.0
		}
		recency := recencyFactor(b, now)

		score := WeightRelevance*relevance +
			WeightDistance*distance +
			WeightRating*rating +
			WeightReviews*reviews +
			WeightVerified*verified +
			WeightRecency*recency

		ranked = append(ranked, &models.RankedResult{
			Business: b,
			Score:    score,
			Factors: map[string]float64{
				"relevance": relevance,
				"distance":  distance,
				"rating":    rating,
				"reviews":   reviews,
				"verified":  verified,
				"recency":   recency,
			},
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Business.Rating != b.Business.Rating {
			return a.Business.Rating > b.Business.Rating
		}
		return a.Business.Name < b.Business.Name
	})
	return ranked
}

// nameBoost rewards query keywords found in the business name or
// description, capped at 0.25.
func nameBoost(b *models.Business, keywords []string) float64 {
	name := strings.ToLower(b.Name)
	description := strings.ToLower(b.Description)
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
	return math.Min(boost, 0.25)
}

func recencyFactor(b *models.Business, now time.Time) float64 {
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = b.CreatedAt
	}
	if updated.IsZero() {
		return 0
	}
	ageDays := now.Sub(updated).Hours() / 24
	return math.Max(0, 1-ageDays/recencyWindowDays)
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
