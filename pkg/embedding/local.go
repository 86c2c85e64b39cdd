package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider is a deterministic hashed bag-of-words embedder for mock
// mode and tests. Tokens are hashed into dimension buckets and the vector
// is L2-normalized, so related texts share buckets while the provider
// needs no network access.
type LocalProvider struct {
	dimension int
	version   string
}

// NewLocalProvider creates a local embedder. Zero values take the package
// defaults.
func NewLocalProvider(dimension int, version string) *LocalProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if version == "" {
		version = "local-v1"
	}
	return &LocalProvider{dimension: dimension, version: version}
}

// Embed hashes the lowercased tokens of text into a normalized vector
func (p *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%p.dimension] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Dimension returns the vector dimension
func (p *LocalProvider) Dimension() int { return p.dimension }

// Version returns the embedding version tag
func (p *LocalProvider) Version() string { return p.version }
