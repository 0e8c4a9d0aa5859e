package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/memory"
)

func TestIsDuplicateDetectsNearIdenticalEmbedding(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	d := New(store, 0.95)

	existing := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "I live in Paris", Embedding: []float32{1, 0, 0}}
	require.NoError(t, store.Create(ctx, existing))

	candidate := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "I live in Paris, France", Embedding: []float32{0.999, 0.001, 0}}
	isDup, match, err := d.IsDuplicate(ctx, candidate)
	require.NoError(t, err)
	assert.True(t, isDup)
	require.NotNil(t, match)
	assert.Equal(t, existing.ID, match.ID)
}

func TestIsDuplicateAllowsDissimilarContent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	d := New(store, 0.95)

	existing := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "I live in Paris", Embedding: []float32{1, 0, 0}}
	require.NoError(t, store.Create(ctx, existing))

	candidate := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "I work at Acme", Embedding: []float32{0, 1, 0}}
	isDup, match, err := d.IsDuplicate(ctx, candidate)
	require.NoError(t, err)
	assert.False(t, isDup)
	assert.Nil(t, match)
}

func TestIsDuplicateSkipsCandidateWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	d := New(store, 0.95)

	candidate := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "no embedding yet"}
	isDup, match, err := d.IsDuplicate(ctx, candidate)
	require.NoError(t, err)
	assert.False(t, isDup)
	assert.Nil(t, match)
}

func TestNewDefaultsThresholdWhenNonPositive(t *testing.T) {
	d := New(memory.NewInMemoryStore(), 0)
	assert.Equal(t, 0.95, d.threshold)
}
