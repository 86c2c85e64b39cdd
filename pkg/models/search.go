package models

import "time"

// Filters is the declared filter record applied by the filter stage. Zero
// values mean "no constraint".
type Filters struct {
	Category  string       `json:"category,omitempty"`
	City      string       `json:"city,omitempty"`
	State     string       `json:"state,omitempty"`
	MinRating float64      `json:"min_rating,omitempty"`
	Prices    []PriceRange `json:"prices,omitempty"`
	// Verified filters on the verification flag when non-nil
	Verified *bool `json:"verified,omitempty"`
	// Statuses defaults to {active} when empty
	Statuses []BusinessStatus `json:"statuses,omitempty"`
	// OpenNow keeps only businesses currently open
	OpenNow bool `json:"open_now,omitempty"`
	// MaxDistanceM bounds the haversine distance for "near me" queries
	MaxDistanceM float64 `json:"max_distance_m,omitempty"`
}

// HybridResult is one merged retrieval hit before filtering and ranking
type HybridResult struct {
	Business *Business `json:"business"`
	// SemanticScore is cosine similarity shifted from [-1,1] to [0,1]
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
	Combined      float64 `json:"combined"`
}

// RankedResult is a final scored result
type RankedResult struct {
	Business *Business `json:"business"`
	Score    float64   `json:"score"`
	// Factors records the per-factor contributions for inspection
	Factors map[string]float64 `json:"factors,omitempty"`
}

// StepTiming records the outcome of one pipeline stage
type StepTiming struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration_ms"`
	FromCache bool          `json:"from_cache,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Performance is the per-request telemetry returned with every result
type Performance struct {
	RequestID  string        `json:"request_id"`
	Steps      []StepTiming  `json:"steps"`
	ModelCalls int           `json:"model_calls"`
	CacheHits  int           `json:"cache_hits"`
	Errors     []string      `json:"errors,omitempty"`
	Total      time.Duration `json:"total_ms"`
	// PartialResults is set when a stage failed non-fatally or the request
	// budget expired before the pipeline finished
	PartialResults bool `json:"partial_results,omitempty"`
}

// SearchResponse is what the pipeline returns to its caller
type SearchResponse struct {
	Results     []*RankedResult `json:"results"`
	Total       int             `json:"total"`
	Analysis    *QueryAnalysis  `json:"analysis"`
	Performance *Performance    `json:"performance"`
}
