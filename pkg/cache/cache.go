// Package cache provides the read-through/write-through KV cache used by
// the query pipeline. Two backends exist: Redis when an endpoint is
// configured, and an in-process map otherwise. Failures never propagate to
// callers; a backend error is observed as a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrCacheUnavailable signals a backend failure. It stays inside this
// package; callers of Get simply see a miss.
var ErrCacheUnavailable = errors.New("cache unavailable")

// TTLs by purpose. Advisory: expiry must never leak a stale value.
const (
	TTLQueryAnalysis  = 30 * time.Minute
	TTLQueryEmbedding = 30 * 24 * time.Hour
	TTLSearchResults  = 5 * time.Minute
	TTLCandidateSet   = 10 * time.Minute
	TTLSimilaritySet  = 30 * time.Minute
	TTLGeocode        = 24 * time.Hour
)

// Cache is the KV contract used by the pipeline. Set is best-effort and
// never returns an error to the caller; Get reports a miss on any backend
// failure. Values are JSON-serialized.
type Cache interface {
	// Get unmarshals the cached value into out and reports whether a live
	// entry was found.
	Get(ctx context.Context, key string, out interface{}) bool
	// Set stores the value with the given TTL. Best-effort.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	// Delete removes a key
	Delete(ctx context.Context, key string) error
	// ScanAndDelete removes every key matching the glob pattern and
	// returns how many were removed
	ScanAndDelete(ctx context.Context, pattern string) (int, error)
	// Close releases backend resources
	Close() error
}

// QueryKey builds the interop cache key for one of the per-query artifacts
// (analysis, embedding, results). The filter serialization participates in
// the hash so different filter sets never collide.
func QueryKey(query, filterRepr, artifact string) string {
	sum := sha256.Sum256([]byte(query + "|" + filterRepr))
	return fmt.Sprintf("query:%s:%s", hex.EncodeToString(sum[:8]), artifact)
}

// CandidateKey builds the key for a semantic candidate id set. Coordinates
// are coarsened to two decimals by the caller.
func CandidateKey(categoryID string, lat2, lng2 string, radiusKM float64) string {
	return fmt.Sprintf("semantic:candidates:cat:%s:loc:%s,%s:rad:%g", categoryID, lat2, lng2, radiusKM)
}

// SimilarityKey builds the key for a cached similarity result set
func SimilarityKey(embPrefixHash, filterHash string) string {
	return fmt.Sprintf("semantic:similarity:%s:%s", embPrefixHash, filterHash)
}

// GeocodeKey builds the key for a cached reverse-geocode result
func GeocodeKey(lat2, lng2 string) string {
	return fmt.Sprintf("geocode:%s,%s", lat2, lng2)
}

// HashString returns a short hex digest used in key construction
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
