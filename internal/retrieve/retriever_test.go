package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/embedding"
	"memoryengine/internal/memory"
)

func TestKeywordClassifierClassifiesSchedule(t *testing.T) {
	c := KeywordClassifier{}
	assert.Equal(t, IntentSchedule, c.Classify("what's on my calendar tomorrow"))
}

func TestKeywordClassifierClassifiesPersonal(t *testing.T) {
	c := KeywordClassifier{}
	assert.Equal(t, IntentPersonal, c.Classify("remember that i like quiet mornings"))
}

func TestKeywordClassifierDefaultsGeneral(t *testing.T) {
	c := KeywordClassifier{}
	assert.Equal(t, IntentGeneral, c.Classify("what's the capital of France"))
}

func TestIsComprehensiveDetectsBroadQuery(t *testing.T) {
	assert.True(t, IsComprehensive("explain everything about my preferences in detail"))
	assert.False(t, IsComprehensive("what time is it"))
}

func TestCompositeScoreClampedToUnitRange(t *testing.T) {
	s := compositeScore(IntentGeneral, 1.0, 1.0, 0, 1000, false)
	assert.LessOrEqual(t, s, 1.0)
	assert.GreaterOrEqual(t, s, 0.0)
}

func TestSearchReturnsHighSimilarityResultFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	embedder := embedding.NewLocalProvider(32)

	close := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "I work remotely from Lisbon", Confidence: 0.9}
	vecs, err := embedder.Embed(ctx, []string{close.Content})
	require.NoError(t, err)
	close.Embedding = vecs[0]
	require.NoError(t, store.Create(ctx, close))

	r := New(store, embedder, nil, 0.75)
	results, err := r.Search(ctx, "u1", "Where do I work from?", 5, 10, nil, 0)
	require.NoError(t, err)
	if len(results) > 0 {
		assert.Equal(t, close.ID, results[0].Memory.ID)
	}
}

func TestSearchDropsColdMemoryBelowSimilarityFloor(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	embedder := embedding.NewLocalProvider(32)

	unrelated := &memory.Memory{UserID: "u1", Kind: memory.KindFact, Content: "zzz totally unrelated content qqq", Confidence: 0.5, SourceTurn: -10000}
	vecs, err := embedder.Embed(ctx, []string{unrelated.Content})
	require.NoError(t, err)
	unrelated.Embedding = vecs[0]
	require.NoError(t, store.Create(ctx, unrelated))

	r := New(store, embedder, nil, 0.75)
	results, err := r.Search(ctx, "u1", "something entirely different xyz", 5, 10, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAccountantRecordDoesNotBlockOnFullBuffer(t *testing.T) {
	store := memory.NewInMemoryStore()
	a := NewAccountant(store, 1)
	defer a.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			a.Record("u1", "m1", int64(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
}
