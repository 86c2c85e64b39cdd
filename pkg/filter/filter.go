// Package filter applies the declared filter record to merged retrieval
// results. Filters run in a fixed order and the category filter carries a
// guardrail: it never empties the result list, trusting retrieval over an
// over-eager category constraint.
package filter

import (
	"strings"
	"time"

	"github.com/placemesh/placemesh/pkg/geo"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
	"github.com/placemesh/placemesh/pkg/observability"
)

// Options tunes one filter pass
type Options struct {
	// StrictCategory disables the don't-over-filter guardrail so the
	// category filter may return an empty list.
	StrictCategory bool
	// Now overrides the clock for the open-now filter. Tests only.
	Now func() time.Time
}

// Stage applies the declared filters in order
type Stage struct {
	taxonomy *normalize.Taxonomy
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewStage creates a filter stage
func NewStage(taxonomy *normalize.Taxonomy, logger observability.Logger, metrics observability.MetricsClient) *Stage {
	if logger == nil {
		logger = observability.NewLogger("filter")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Stage{taxonomy: taxonomy, logger: logger, metrics: metrics}
}

// Apply runs the filter chain: category, city, distance, rating, price,
// verified, status, open-now. loc may be nil when no location resolved.
func (s *Stage) Apply(results []*models.HybridResult, f models.Filters, loc *models.ResolvedLocation, opts Options) []*models.HybridResult {
	before := len(results)

	results = s.filterCategory(results, f.Category, opts.StrictCategory)
	results = s.filterCity(results, f.City)
	results = s.filterDistance(results, f, loc)
	results = keep(results, func(b *models.Business) bool {
		return b.Rating >= f.MinRating
	})
	if len(f.Prices) > 0 {
		allowed := map[models.PriceRange]bool{}
		for _, p := range f.Prices {
			allowed[p] = true
		}
		results = keep(results, func(b *models.Business) bool {
			return allowed[b.PriceRange]
		})
	}
	if f.Verified != nil {
		results = keep(results, func(b *models.Business) bool {
			return b.Verified == *f.Verified
		})
	}
	results = s.filterStatus(results, f.Statuses)
	if f.OpenNow {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		results = keep(results, func(b *models.Business) bool {
			return openAt(b, now())
		})
	}

	s.metrics.RecordGauge("filter.dropped", float64(before-len(results)), nil)
	return results
}

// filterCategory keeps items in the requested category family. Unless
// strict, an empty survivor set falls back to the unfiltered input.
func (s *Stage) filterCategory(results []*models.HybridResult, category string, strict bool) []*models.HybridResult {
	if category == "" || category == normalize.RootGeneral {
		return results
	}
	kept := keep(results, func(b *models.Business) bool {
		return s.inCategory(b, category)
	})
	if len(kept) == 0 && !strict {
		s.logger.Debug("Category filter would empty results, keeping pre-filter list", map[string]interface{}{
			"category":   category,
			"candidates": len(results),
		})
		return results
	}
	return kept
}

func (s *Stage) inCategory(b *models.Business, category string) bool {
	if b.Category == category || b.Subcategory == category {
		return true
	}
	if b.Subcategory != "" && s.taxonomy.Root(b.Subcategory) == category {
		return true
	}
	return b.Category != "" && s.taxonomy.Root(b.Category) == category
}

// filterCity keeps items whose city or address mentions the resolved city
func (s *Stage) filterCity(results []*models.HybridResult, city string) []*models.HybridResult {
	if city == "" {
		return results
	}
	lowered := strings.ToLower(city)
	return keep(results, func(b *models.Business) bool {
		if strings.EqualFold(b.Address.City, city) {
			return true
		}
		address := strings.ToLower(b.Address.Street + " " + b.Address.Formatted)
		return strings.Contains(address, lowered)
	})
}

// filterDistance applies the radius bound for "near me" style queries.
// City-scoped requests carry no MaxDistanceM and skip this entirely.
func (s *Stage) filterDistance(results []*models.HybridResult, f models.Filters, loc *models.ResolvedLocation) []*models.HybridResult {
	if f.MaxDistanceM <= 0 || f.City != "" || loc == nil {
		return results
	}
	return keep(results, func(b *models.Business) bool {
		c := b.Address.Coordinates
		if c == nil {
			return false
		}
		return geo.WithinRadius(loc.Lat, loc.Lng, c.Lat, c.Lng, f.MaxDistanceM)
	})
}

func (s *Stage) filterStatus(results []*models.HybridResult, statuses []models.BusinessStatus) []*models.HybridResult {
	if len(statuses) == 0 {
		statuses = []models.BusinessStatus{models.StatusActive}
	}
	allowed := map[models.BusinessStatus]bool{}
	for _, st := range statuses {
		allowed[st] = true
	}
	return keep(results, func(b *models.Business) bool {
		return allowed[b.Status]
	})
}

// openAt reports whether the business is open at t, evaluated in the
// business's own timezone. Missing hours mean unknown and pass the filter.
func openAt(b *models.Business, t time.Time) bool {
	if len(b.Hours) == 0 {
		return true
	}
	if b.Address.Timezone != "" {
		if tz, err := time.LoadLocation(b.Address.Timezone); err == nil {
			t = t.In(tz)
		}
	}
	day, ok := b.Hours[t.Weekday()]
	if !ok || day.Closed {
		return false
	}
	if day.Open == "" || day.Close == "" {
		return true
	}
	current := t.Format("15:04")
	if day.Close < day.Open {
		// spans midnight
		return current >= day.Open || current <= day.Close
	}
	return current >= day.Open && current <= day.Close
}

func keep(results []*models.HybridResult, pred func(*models.Business) bool) []*models.HybridResult {
	out := make([]*models.HybridResult, 0, len(results))
	for _, r := range results {
		if pred(r.Business) {
			out = append(out, r)
		}
	}
	return out
}
