package filter

import (
	"testing"
	"time"

	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStage() *Stage {
	return NewStage(normalize.DefaultTaxonomy(), nil, nil)
}

func hit(b *models.Business) *models.HybridResult {
	return &models.HybridResult{Business: b, Combined: 0.5}
}

func sampleResults() []*models.HybridResult {
	return []*models.HybridResult{
		hit(&models.Business{
			ID: "cafe-1", Name: "Blue Tokai", Category: "food", Subcategory: "cafe",
			Rating: 4.5, PriceRange: models.PriceModerate, Verified: true,
			Status:  models.StatusActive,
			Address: models.Address{City: "Mumbai", Coordinates: &models.Coordinates{Lat: 19.07, Lng: 72.87}},
		}),
		hit(&models.Business{
			ID: "cafe-2", Name: "Roadside Chai", Category: "food", Subcategory: "cafe",
			Rating: 3.8, PriceRange: models.PriceBudget,
			Status:  models.StatusActive,
			Address: models.Address{City: "Pune", Coordinates: &models.Coordinates{Lat: 18.52, Lng: 73.86}},
		}),
		hit(&models.Business{
			ID: "gym-1", Name: "Cult Fitness", Category: "fitness", Subcategory: "gym",
			Rating: 4.2, PriceRange: models.PriceExpensive, Verified: true,
			Status:  models.StatusActive,
			Address: models.Address{City: "Mumbai", Coordinates: &models.Coordinates{Lat: 19.11, Lng: 72.86}},
		}),
		hit(&models.Business{
			ID: "closed-1", Name: "Gone Cafe", Category: "food", Subcategory: "cafe",
			Rating: 4.9, PriceRange: models.PriceBudget,
			Status:  models.StatusInactive,
			Address: models.Address{City: "Mumbai"},
		}),
	}
}

func ids(results []*models.HybridResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Business.ID
	}
	return out
}

func TestApplyDefaultsToActiveOnly(t *testing.T) {
	got := newStage().Apply(sampleResults(), models.Filters{}, nil, Options{})
	assert.NotContains(t, ids(got), "closed-1")
	assert.Len(t, got, 3)
}

func TestCategoryFilter(t *testing.T) {
	got := newStage().Apply(sampleResults(), models.Filters{Category: "food"}, nil, Options{})
	assert.ElementsMatch(t, []string{"cafe-1", "cafe-2"}, ids(got))
}

func TestCategoryGuardrailKeepsResults(t *testing.T) {
	// nothing matches "automotive"; the guardrail keeps the pre-filter list
	got := newStage().Apply(sampleResults(), models.Filters{Category: "automotive"}, nil, Options{})
	assert.Len(t, got, 3)

	strict := newStage().Apply(sampleResults(), models.Filters{Category: "automotive"}, nil, Options{StrictCategory: true})
	assert.Empty(t, strict)
}

func TestCityFilter(t *testing.T) {
	got := newStage().Apply(sampleResults(), models.Filters{City: "Mumbai"}, nil, Options{})
	assert.ElementsMatch(t, []string{"cafe-1", "gym-1"}, ids(got))
}

func TestCityFilterMatchesAddressSubstring(t *testing.T) {
	results := []*models.HybridResult{
		hit(&models.Business{
			ID: "x1", Name: "Hidden Cafe", Category: "food", Status: models.StatusActive,
			Address: models.Address{Formatted: "12 MG Road, Bangalore 560001"},
		}),
	}
	got := newStage().Apply(results, models.Filters{City: "Bangalore"}, nil, Options{})
	assert.Len(t, got, 1)
}

func TestDistanceFilterOnlyForNearMe(t *testing.T) {
	loc := &models.ResolvedLocation{Lat: 19.07, Lng: 72.87}

	// near-me style: no city, radius applies; Pune is ~120km away
	got := newStage().Apply(sampleResults(), models.Filters{MaxDistanceM: 10000}, loc, Options{})
	assert.NotContains(t, ids(got), "cafe-2")

	// city-scoped: distance skipped even with a radius set
	got = newStage().Apply(sampleResults(), models.Filters{City: "Pune", MaxDistanceM: 10000}, loc, Options{})
	assert.Equal(t, []string{"cafe-2"}, ids(got))
}

func TestNumericFilters(t *testing.T) {
	stage := newStage()

	got := stage.Apply(sampleResults(), models.Filters{MinRating: 4.0}, nil, Options{})
	assert.ElementsMatch(t, []string{"cafe-1", "gym-1"}, ids(got))

	got = stage.Apply(sampleResults(), models.Filters{Prices: []models.PriceRange{models.PriceBudget}}, nil, Options{})
	assert.Equal(t, []string{"cafe-2"}, ids(got))

	verified := true
	got = stage.Apply(sampleResults(), models.Filters{Verified: &verified}, nil, Options{})
	assert.ElementsMatch(t, []string{"cafe-1", "gym-1"}, ids(got))
}

func TestStatusFilterExplicitSet(t *testing.T) {
	got := newStage().Apply(sampleResults(),
		models.Filters{Statuses: []models.BusinessStatus{models.StatusInactive}}, nil, Options{})
	assert.Equal(t, []string{"closed-1"}, ids(got))
}

func TestOpenNowFilter(t *testing.T) {
	open := hit(&models.Business{
		ID: "open", Name: "Day Cafe", Category: "food", Status: models.StatusActive,
		Hours: map[time.Weekday]models.DayHours{
			time.Monday: {Open: "09:00", Close: "21:00"},
		},
	})
	shut := hit(&models.Business{
		ID: "shut", Name: "Night Cafe", Category: "food", Status: models.StatusActive,
		Hours: map[time.Weekday]models.DayHours{
			time.Monday: {Closed: true},
		},
	})
	noHours := hit(&models.Business{
		ID: "unknown", Name: "Mystery Cafe", Category: "food", Status: models.StatusActive,
	})

	// a Monday at noon UTC
	monday := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	got := newStage().Apply([]*models.HybridResult{open, shut, noHours},
		models.Filters{OpenNow: true}, nil,
		Options{Now: func() time.Time { return monday }})
	assert.ElementsMatch(t, []string{"open", "unknown"}, ids(got))
}

func TestOpenAtSpansMidnight(t *testing.T) {
	b := &models.Business{
		Hours: map[time.Weekday]models.DayHours{
			time.Friday:   {Open: "20:00", Close: "02:00"},
			time.Saturday: {Closed: true},
		},
	}
	friday23 := time.Date(2026, 8, 21, 23, 0, 0, 0, time.UTC)
	require.Equal(t, time.Friday, friday23.Weekday())
	assert.True(t, openAt(b, friday23))

	friday12 := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	assert.False(t, openAt(b, friday12))
}
