package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/placemesh/placemesh/pkg/cache"
	"github.com/placemesh/placemesh/pkg/geo"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/normalize"
)

// resolveLocation anchors the query to a location using the priority:
// explicit entity location, then profile location (radius-bounded for
// near-me queries), then device geolocation, then request IP, then none.
// Derived filter fields are filled as a side effect.
func (p *Pipeline) resolveLocation(ctx context.Context, req Request, analysis *models.QueryAnalysis, filters *models.Filters, nearMe bool, perf *models.Performance) *models.ResolvedLocation {
	// Explicit city named in the query. City-scoped requests never get a
	// distance bound.
	for _, l := range analysis.Entities.Locations {
		if city, ok := normalize.KnownCity(l); ok {
			if filters.City == "" {
				filters.City = city
			}
			return &models.ResolvedLocation{
				City:   city,
				Source: models.LocationSourceExplicit,
			}
		}
	}

	if p.cfg.Profiles != nil && req.UserID != "" {
		profile, err := p.cfg.Profiles.GetUserLocation(ctx, req.UserID)
		if err != nil {
			perf.Errors = append(perf.Errors, fmt.Sprintf("profile location: %s", err.Error()))
		} else if profile != nil {
			loc := &models.ResolvedLocation{
				Lat:    profile.Lat,
				Lng:    profile.Lng,
				Source: models.LocationSourceProfile,
				Stale:  profile.Stale(time.Now()),
			}
			p.fillPlace(ctx, loc)
			if nearMe {
				loc.RadiusM = p.cfg.NearMeRadiusM
				if filters.MaxDistanceM <= 0 {
					filters.MaxDistanceM = p.cfg.NearMeRadiusM
				}
			}
			return loc
		}
	}

	if req.Geolocation != nil {
		loc := &models.ResolvedLocation{
			Lat:    req.Geolocation.Lat,
			Lng:    req.Geolocation.Lng,
			Source: models.LocationSourceGeolocation,
		}
		p.fillPlace(ctx, loc)
		if nearMe {
			loc.RadiusM = p.cfg.NearMeRadiusM
			if filters.MaxDistanceM <= 0 {
				filters.MaxDistanceM = p.cfg.NearMeRadiusM
			}
		}
		return loc
	}

	if p.cfg.IPLocator != nil && req.IP != "" {
		point, err := p.cfg.IPLocator.Locate(ctx, req.IP)
		if err != nil {
			perf.Errors = append(perf.Errors, fmt.Sprintf("ip location: %s", err.Error()))
		} else if point != nil {
			loc := &models.ResolvedLocation{
				Lat:    point.Lat,
				Lng:    point.Lng,
				Source: models.LocationSourceIP,
			}
			p.fillPlace(ctx, loc)
			if nearMe {
				loc.RadiusM = p.cfg.NearMeRadiusM
				if filters.MaxDistanceM <= 0 {
					filters.MaxDistanceM = p.cfg.NearMeRadiusM
				}
			}
			return loc
		}
	}

	return nil
}

// fillPlace reverse-geocodes the coordinates into a city and state,
// best-effort through the 24h geocode cache.
func (p *Pipeline) fillPlace(ctx context.Context, loc *models.ResolvedLocation) {
	if p.cfg.Geocoder == nil {
		return
	}
	lat2 := fmt.Sprintf("%.2f", loc.Lat)
	lng2 := fmt.Sprintf("%.2f", loc.Lng)
	key := cache.GeocodeKey(lat2, lng2)

	var place geo.Place
	if p.cfg.Cache.Get(ctx, key, &place) {
		loc.City, loc.State = place.City, place.State
		return
	}

	resolved, err := p.cfg.Geocoder.ReverseGeocode(ctx, loc.Lat, loc.Lng)
	if err != nil || resolved == nil {
		if err != nil {
			p.logger.Debug("Reverse geocode failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}
	loc.City, loc.State = resolved.City, resolved.State
	p.cfg.Cache.Set(ctx, key, resolved, cache.TTLGeocode)
}
