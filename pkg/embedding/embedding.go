// Package embedding produces query vectors for semantic retrieval. The
// Bedrock Titan provider is the production path; CachedProvider fronts any
// provider with the shared cache so repeated queries never re-embed.
package embedding

import (
	"context"
	"fmt"
)

// Defaults for the production embedding model
const (
	DefaultDimension = 1024
	DefaultVersion   = "titan-v2"
)

// ErrDimensionMismatch reports a vector whose length does not match the
// provider's declared dimension.
var ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")

// Provider produces embedding vectors for text
type Provider interface {
	// Embed returns the vector for text. The returned slice always has
	// length Dimension().
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector length this provider produces
	Dimension() int
	// Version identifies the model so vectors from different models are
	// never compared.
	Version() string
}

// ZeroVector returns the all-zero vector of the given dimension. Used as
// the degraded stand-in when embedding fails; it scores zero against every
// candidate instead of failing the search.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// IsZero reports whether every component of v is zero
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
