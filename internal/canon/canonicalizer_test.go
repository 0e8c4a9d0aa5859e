package canon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/memory"
)

func TestKeyForMatchesFirstPattern(t *testing.T) {
	assert.Equal(t, "timezone", KeyFor("My timezone is PST"))
	assert.Equal(t, "allergies", KeyFor("I am allergic to peanuts"))
	assert.Equal(t, "", KeyFor("the sky is blue"))
}

func TestKeyForFirstTableEntryWins(t *testing.T) {
	// "call" appears in call_time's patterns before any other key's, so a
	// string matching only that pattern resolves to call_time.
	assert.Equal(t, "call_time", KeyFor("please call me tomorrow"))
}

func TestResolveReturnsNilWhenNoCanonicalKey(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	c := New(store)

	m := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "the sky is blue"}
	existing, err := c.Resolve(ctx, m)
	require.NoError(t, err)
	assert.Nil(t, existing)
	assert.Empty(t, m.Tags)
}

func TestResolveTagsCandidateAndFindsExistingMatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	c := New(store)

	first := &memory.Memory{UserID: "u1", Kind: memory.KindPreference, Content: "my timezone is PST", Tags: []string{"timezone"}}
	require.NoError(t, store.Create(ctx, first))

	candidate := &memory.Memory{UserID: "u1", Kind: memory.KindPreference, Content: "my timezone is EST"}
	existing, err := c.Resolve(ctx, candidate)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)
	assert.Contains(t, candidate.Tags, "timezone")
}

func TestApplyUpdateMergesContentAndContext(t *testing.T) {
	existing := &memory.Memory{ID: "m1", Content: "old", Context: map[string]string{"a": "1"}}
	candidate := &memory.Memory{Content: "new", ContentHash: "h", Confidence: 0.9, Context: map[string]string{"b": "2"}}

	ApplyUpdate(existing, candidate)

	assert.Equal(t, "m1", existing.ID)
	assert.Equal(t, "new", existing.Content)
	assert.Equal(t, memory.ContentHashOf("", "new"), existing.ContentHash)
	assert.Equal(t, 0.9, existing.Confidence)
	assert.Equal(t, "1", existing.Context["a"])
	assert.Equal(t, "2", existing.Context["b"])
}
