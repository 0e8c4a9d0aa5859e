package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministicAndNormalized(t *testing.T) {
	p := NewLocalProvider(64)
	ctx := context.Background()

	out1, err := p.Embed(ctx, []string{"my birthday is in March"})
	require.NoError(t, err)
	out2, err := p.Embed(ctx, []string{"my birthday is in March"})
	require.NoError(t, err)

	assert.Equal(t, out1, out2, "same text must embed to the same vector")

	var norm float64
	for _, x := range out1[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6, "vectors must be unit-normalized")
}

func TestLocalProviderDistinguishesDissimilarText(t *testing.T) {
	p := NewLocalProvider(256)
	ctx := context.Background()

	out, err := p.Embed(ctx, []string{"the quick brown fox", "quarterly earnings report"})
	require.NoError(t, err)

	var dot float64
	for i := range out[0] {
		dot += float64(out[0][i]) * float64(out[1][i])
	}
	assert.Less(t, dot, 0.9, "unrelated strings should not be near-identical vectors")
}

func TestCachedProviderPassThroughWithoutRedis(t *testing.T) {
	inner := NewLocalProvider(32)
	cached := NewCachedProvider(inner, nil, 0, 0)

	out, err := cached.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, inner.Dimension(), cached.Dimension())
	assert.Equal(t, inner.Name(), cached.Name())
}

func TestCachedProviderEmptyInput(t *testing.T) {
	cached := NewCachedProvider(NewLocalProvider(16), nil, 0, 0)
	out, err := cached.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
