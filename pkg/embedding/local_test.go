package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(32, "local-v1")

	a, err := p.Embed(context.Background(), "coffee shops in Mumbai")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "coffee shops in Mumbai")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestLocalProviderNormalized(t *testing.T) {
	p := NewLocalProvider(64, "")

	vec, err := p.Embed(context.Background(), "yoga studio with morning classes")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalProviderOverlapRaisesSimilarity(t *testing.T) {
	p := NewLocalProvider(64, "local-v1")

	coffee, _ := p.Embed(context.Background(), "specialty coffee roastery")
	related, _ := p.Embed(context.Background(), "coffee and pastries")
	unrelated, _ := p.Embed(context.Background(), "heavy machinery rental")

	assert.Greater(t, cosine(coffee, related), cosine(coffee, unrelated))
}

func TestLocalProviderEmptyText(t *testing.T) {
	p := NewLocalProvider(16, "local-v1")

	vec, err := p.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, IsZero(vec))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
