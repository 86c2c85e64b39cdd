package models

// Intent enumerates the recognized query intents
type Intent string

// Query intents
const (
	IntentSearch     Intent = "search"
	IntentBook       Intent = "book"
	IntentCompare    Intent = "compare"
	IntentReview     Intent = "review"
	IntentDirections Intent = "directions"
	IntentUnknown    Intent = "unknown"
)

// ValidIntent reports whether s is one of the six intent tokens
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentSearch, IntentBook, IntentCompare, IntentReview, IntentDirections, IntentUnknown:
		return true
	}
	return false
}

// LocationSource indicates how a resolved location was obtained
type LocationSource string

// Location sources, in resolution priority order
const (
	LocationSourceExplicit    LocationSource = "explicit"
	LocationSourceProfile     LocationSource = "profile"
	LocationSourceGeolocation LocationSource = "geolocation"
	LocationSourceIP          LocationSource = "ip"
)

// ResolvedLocation is the location a query is anchored to
type ResolvedLocation struct {
	Lat     float64        `json:"lat"`
	Lng     float64        `json:"lng"`
	RadiusM float64        `json:"radius_m,omitempty"`
	Source  LocationSource `json:"source"`
	City    string         `json:"city,omitempty"`
	State   string         `json:"state,omitempty"`
	// Stale marks a profile location older than 30 days
	Stale bool `json:"stale,omitempty"`
}

// IntentResult is the outcome of intent detection
type IntentResult struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// CategoryResult is the outcome of category classification
type CategoryResult struct {
	Primary      string   `json:"primary"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"` // at most three
}

// Entities holds the extracted and normalized query entities. Each list is
// deduplicated preserving first occurrence.
type Entities struct {
	Locations     []string `json:"locations"`
	BusinessNames []string `json:"business_names"`
	Times         []string `json:"times"`
	Prices        []string `json:"prices"`
	Features      []string `json:"features"`
	Confidence    float64  `json:"confidence"`
}

// QueryAnalysis is the full NLP analysis of one query
type QueryAnalysis struct {
	Query      string            `json:"query"`
	Intent     IntentResult      `json:"intent"`
	Category   CategoryResult    `json:"category"`
	Entities   Entities          `json:"entities"`
	Location   *ResolvedLocation `json:"location,omitempty"`
	Confidence float64           `json:"confidence"`
	// Degraded marks an analysis built from heuristics after a model failure
	Degraded bool `json:"degraded,omitempty"`
}
