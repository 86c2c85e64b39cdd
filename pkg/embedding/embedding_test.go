package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/placemesh/placemesh/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns a fixed vector and counts invocations
type fakeProvider struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeProvider) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeProvider) Dimension() int  { return len(f.vec) }
func (f *fakeProvider) Version() string { return "test-v1" }

func TestCachedProviderRoundTrip(t *testing.T) {
	inner := &fakeProvider{vec: []float32{0.1, 0.2, 0.3}}
	p := NewCachedProvider(inner, cache.NewMemoryCache(nil), nil, nil)
	ctx := context.Background()

	first, err := p.Embed(ctx, "coffee in mumbai")
	require.NoError(t, err)
	assert.Equal(t, inner.vec, first)

	// same text modulo case and whitespace hits the cache
	second, err := p.Embed(ctx, "  Coffee in Mumbai ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProviderDistinctTexts(t *testing.T) {
	inner := &fakeProvider{vec: []float32{1, 0}}
	p := NewCachedProvider(inner, cache.NewMemoryCache(nil), nil, nil)
	ctx := context.Background()

	_, err := p.Embed(ctx, "cafes")
	require.NoError(t, err)
	_, err = p.Embed(ctx, "gyms")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProviderPropagatesErrors(t *testing.T) {
	inner := &fakeProvider{vec: []float32{1}, err: errors.New("model timeout")}
	p := NewCachedProvider(inner, cache.NewMemoryCache(nil), nil, nil)

	_, err := p.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestZeroVector(t *testing.T) {
	v := ZeroVector(4)
	assert.Len(t, v, 4)
	assert.True(t, IsZero(v))
	assert.False(t, IsZero([]float32{0, 0.001, 0}))
}
