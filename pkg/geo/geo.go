// Package geo provides distance math and the location collaborator
// interfaces used during query processing.
package geo

import (
	"context"
	"math"
	"time"
)

const earthRadiusM = 6371000.0

// StaleAfter is how old a profile location may be before it is flagged stale
const StaleAfter = 30 * 24 * time.Hour

// Point is a bare coordinate pair
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineMeters returns the great-circle distance between two points
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// WithinRadius reports whether the two points are within radiusM meters
func WithinRadius(lat1, lng1, lat2, lng2, radiusM float64) bool {
	return HaversineMeters(lat1, lng1, lat2, lng2) <= radiusM
}

// BoundingBox is a country-level coordinate sanity bound
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IndiaBoundingBox is the default deployment bounding box
var IndiaBoundingBox = BoundingBox{MinLat: 6.0, MaxLat: 37.5, MinLng: 68.0, MaxLng: 97.5}

// Contains reports whether the point lies inside the box
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Place is a reverse-geocoded location
type Place struct {
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country"`
	Formatted string `json:"formatted"`
}

// Geocoder resolves coordinates into place names. Optional collaborator.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*Place, error)
}

// ProfileLocation is a user's saved location
type ProfileLocation struct {
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	Address     string     `json:"address,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Stale reports whether the profile location is older than StaleAfter
func (p *ProfileLocation) Stale(now time.Time) bool {
	if p.LastUpdated == nil {
		return false
	}
	return now.Sub(*p.LastUpdated) > StaleAfter
}

// UserProfileStore looks up a user's saved location. Optional collaborator.
type UserProfileStore interface {
	GetUserLocation(ctx context.Context, userID string) (*ProfileLocation, error)
}

// IPLocator resolves a request IP to a coarse location. Optional
// collaborator; accuracy is city-level at best.
type IPLocator interface {
	Locate(ctx context.Context, ip string) (*Point, error)
}
