package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/memerr"
)

func TestInMemoryStoreCreateRejectsDuplicateContentHash(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	first := &Memory{UserID: "u1", Kind: KindFact, Content: "I work at Acme"}
	require.NoError(t, s.Create(ctx, first))

	dup := &Memory{UserID: "u1", Kind: KindFact, Content: "I work at Acme"}
	err := s.Create(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, memerr.DuplicateMemory, memerr.KindOf(err))
}

func TestInMemoryStoreGetNotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get(context.Background(), "u1", "missing")
	require.Error(t, err)
	assert.Equal(t, memerr.NotFound, memerr.KindOf(err))
}

func TestInMemoryStoreUpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	m := &Memory{UserID: "u1", Kind: KindPreference, Content: "likes tea"}
	require.NoError(t, s.Create(ctx, m))
	assert.Equal(t, 1, m.Version)

	m.Content = "likes green tea"
	require.NoError(t, s.Update(ctx, m))
	assert.Equal(t, 2, m.Version)

	fetched, err := s.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "likes green tea", fetched.Content)
}

func TestInMemoryStoreSimilaritySearchOrdersByScore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	close := &Memory{UserID: "u1", Kind: KindFact, Content: "a", Embedding: []float32{1, 0, 0}}
	far := &Memory{UserID: "u1", Kind: KindFact, Content: "b", Embedding: []float32{0, 1, 0}}
	require.NoError(t, s.Create(ctx, close))
	require.NoError(t, s.Create(ctx, far))

	results, err := s.SimilaritySearch(ctx, "u1", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, close.ID, results[0].Memory.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestTierForBoundaries(t *testing.T) {
	assert.Equal(t, TierHot, TierFor(100, 50))
	assert.Equal(t, TierWarm, TierFor(600, 100))
	assert.Equal(t, TierCold, TierFor(1000, 100))
}

func TestContentHashOfIgnoresCaseAndWhitespace(t *testing.T) {
	a := ContentHashOf("u1", "I Work At Acme")
	b := ContentHashOf("u1", "  i work   at acme  ")
	assert.Equal(t, a, b)
}
