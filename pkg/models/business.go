// Package models defines the data types shared across the placemesh search
// core: business records, query analysis, filters, and result shapes.
// Business records are owned by the external store; the core only holds
// transient copies for the duration of one request.
package models

import "time"

// BusinessStatus enumerates lifecycle states of a business record
type BusinessStatus string

// Business statuses
const (
	StatusActive    BusinessStatus = "active"
	StatusInactive  BusinessStatus = "inactive"
	StatusPending   BusinessStatus = "pending"
	StatusSuspended BusinessStatus = "suspended"
)

// PriceRange is one of the four price tier tokens
type PriceRange string

// Price tiers
const (
	PriceBudget    PriceRange = "$"
	PriceModerate  PriceRange = "$$"
	PriceExpensive PriceRange = "$$$"
	PriceLuxury    PriceRange = "$$$$"
)

// ValidPriceRange reports whether p is one of the four tier tokens
func ValidPriceRange(p PriceRange) bool {
	switch p {
	case PriceBudget, PriceModerate, PriceExpensive, PriceLuxury:
		return true
	}
	return false
}

// Coordinates is a WGS84 lat/lng pair
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Address holds the structured location of a business
type Address struct {
	Street      string       `json:"street,omitempty"`
	City        string       `json:"city,omitempty"`
	State       string       `json:"state,omitempty"`
	PostalCode  string       `json:"postal_code,omitempty"`
	Country     string       `json:"country,omitempty"`
	Formatted   string       `json:"formatted,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Timezone    string       `json:"timezone,omitempty"`
}

// DayHours describes opening hours for one weekday
type DayHours struct {
	Open   string `json:"open,omitempty"`  // "09:00"
	Close  string `json:"close,omitempty"` // "21:30"
	Closed bool   `json:"closed,omitempty"`
}

// Business is a single business record from the store
type Business struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Description string   `json:"description,omitempty" db:"description"`
	Category    string   `json:"category" db:"category"`
	Subcategory string   `json:"subcategory,omitempty" db:"subcategory"`
	Tags        []string `json:"tags,omitempty"`

	Address Address `json:"address"`

	Phone   string `json:"phone,omitempty" db:"phone"` // E.164
	Email   string `json:"email,omitempty" db:"email"`
	Website string `json:"website,omitempty" db:"website"`

	Rating      float64    `json:"rating" db:"rating"` // 0.0-5.0, one decimal
	ReviewCount int        `json:"review_count" db:"review_count"`
	PriceRange  PriceRange `json:"price_range,omitempty" db:"price_range"`
	Amenities   []string   `json:"amenities,omitempty"`

	Hours map[time.Weekday]DayHours `json:"hours,omitempty"`

	Status   BusinessStatus `json:"status" db:"status"`
	Verified bool           `json:"verified" db:"verified"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// EmbeddingVersion tags which embedding model produced the stored vector
	EmbeddingVersion string `json:"embedding_version,omitempty" db:"embedding_version"`

	// DistanceMeters is populated by the ranker when the request has a
	// resolved location. Not persisted.
	DistanceMeters float64 `json:"distance_meters,omitempty" db:"-"`
}

// City returns the best available city name for the business
func (b *Business) City() string {
	return b.Address.City
}

// HasCoordinates reports whether the business has a usable lat/lng
func (b *Business) HasCoordinates() bool {
	return b.Address.Coordinates != nil
}
