package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/config"
	"memoryengine/internal/embedding"
	"memoryengine/internal/llm"
	"memoryengine/internal/memory"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Chat(context.Context, []llm.Message, string) (string, error) {
	return s.reply, s.err
}

func newMemory(userID string, kind memory.Kind, content string, sourceTurn int64) *memory.Memory {
	return &memory.Memory{
		ID:              content + "-id",
		UserID:          userID,
		Kind:            kind,
		Content:         content,
		ContentHash:     memory.ContentHashOf(userID, content),
		Confidence:      0.8,
		ImportanceScore: 0.5,
		ImportanceLevel: "medium",
		SourceTurn:      sourceTurn,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func TestRecomputeDecayScoreGrowsWithDelta(t *testing.T) {
	assert.Equal(t, 0.0, recomputeDecayScore(100, 100))
	assert.InDelta(t, 0.5, recomputeDecayScore(600, 100), 0.001)
	assert.Equal(t, 1.0, recomputeDecayScore(2000, 100))
}

func TestChangedEnoughRespectsFloor(t *testing.T) {
	assert.False(t, changedEnough(0.40, 0.42, 0.05))
	assert.True(t, changedEnough(0.40, 0.50, 0.05))
}

func TestClusterGroupsSimilarEmbeddingsWithinUserAndKind(t *testing.T) {
	a := newMemory("u1", memory.KindFact, "lives in berlin", 1)
	a.Embedding = []float32{1, 0, 0}
	b := newMemory("u1", memory.KindFact, "resides in berlin", 2)
	b.Embedding = []float32{0.99, 0.01, 0}
	c := newMemory("u1", memory.KindFact, "likes pizza", 3)
	c.Embedding = []float32{0, 1, 0}

	clusters := cluster([]*memory.Memory{a, b, c}, 0.90)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 2)
}

func TestClusterIgnoresDifferentKindsAndUsers(t *testing.T) {
	a := newMemory("u1", memory.KindFact, "lives in berlin", 1)
	a.Embedding = []float32{1, 0, 0}
	b := newMemory("u2", memory.KindFact, "lives in berlin too", 2)
	b.Embedding = []float32{1, 0, 0}
	c := newMemory("u1", memory.KindPreference, "lives in berlin", 1)
	c.Embedding = []float32{1, 0, 0}

	clusters := cluster([]*memory.Memory{a, b, c}, 0.90)
	assert.Empty(t, clusters)
}

func TestBuildConsolidatedUnionsTagsAndMaxConfidence(t *testing.T) {
	a := newMemory("u1", memory.KindFact, "lives in berlin", 1)
	a.Confidence = 0.6
	a.Tags = []string{"location"}
	b := newMemory("u1", memory.KindFact, "resides in berlin", 2)
	b.Confidence = 0.9
	b.Tags = []string{"geo"}

	merged := BuildConsolidated([]*memory.Memory{a, b}, "lives in berlin", 42)
	assert.Equal(t, 0.9, merged.Confidence)
	assert.ElementsMatch(t, []string{"location", "geo"}, merged.Tags)
	assert.Equal(t, int64(42), merged.SourceTurn)
	assert.Contains(t, merged.Context["consolidated_from"], a.ID)
}

func TestConsolidatorMergeFallsBackOnLLMFailure(t *testing.T) {
	c := NewConsolidator(&stubLLM{err: assertErr("boom")}, "test-model")
	a := newMemory("u1", memory.KindFact, "lives in berlin", 1)
	a.Confidence = 0.9
	b := newMemory("u1", memory.KindFact, "resides in berlin", 2)
	b.Confidence = 0.5

	merged := c.Merge(context.Background(), []*memory.Memory{a, b})
	assert.Equal(t, a.Content, merged)
}

func TestConflictResolverCheckDetectsLocationConflict(t *testing.T) {
	r := NewConflictResolver(&stubLLM{reply: "true"}, "test-model")
	candidate := newMemory("u1", memory.KindFact, "I moved to Paris", 10)
	existing := newMemory("u1", memory.KindFact, "I live in Berlin", 1)

	other, conflictType := r.Check(context.Background(), candidate, []*memory.Memory{existing})
	require.NotNil(t, other)
	assert.Equal(t, existing.ID, other.ID)
	assert.Equal(t, ConflictLocationChange, conflictType)
}

func TestConflictResolverCheckReturnsNilWhenLLMSaysNoConflict(t *testing.T) {
	r := NewConflictResolver(&stubLLM{reply: "false"}, "test-model")
	candidate := newMemory("u1", memory.KindFact, "I moved to Paris", 10)
	existing := newMemory("u1", memory.KindFact, "I live in Berlin", 1)

	other, _ := r.Check(context.Background(), candidate, []*memory.Memory{existing})
	assert.Nil(t, other)
}

func TestConflictResolverCheckFailsClosedOnLLMError(t *testing.T) {
	r := NewConflictResolver(&stubLLM{err: assertErr("down")}, "test-model")
	candidate := newMemory("u1", memory.KindFact, "I moved to Paris", 10)
	existing := newMemory("u1", memory.KindFact, "I live in Berlin", 1)

	other, _ := r.Check(context.Background(), candidate, []*memory.Memory{existing})
	assert.Nil(t, other)
}

func TestResolveSupersededLowersOldImportanceAndLinksBoth(t *testing.T) {
	newMem := newMemory("u1", memory.KindFact, "I moved to Paris", 10)
	oldMem := newMemory("u1", memory.KindFact, "I live in Berlin", 1)

	resolution := Resolve(newMem, oldMem, ConflictLocationChange)
	assert.Equal(t, "superseded", resolution)
	assert.Equal(t, "low", oldMem.ImportanceLevel)
	assert.Equal(t, 0.3, oldMem.ImportanceScore)
	assert.Equal(t, newMem.ID, oldMem.Context["superseded_by"])
	assert.Equal(t, oldMem.ID, newMem.Context["supersedes"])
}

func TestResolvePreferenceChangeKeepsBothLinked(t *testing.T) {
	newMem := newMemory("u1", memory.KindPreference, "I prefer email now", 10)
	oldMem := newMemory("u1", memory.KindPreference, "I prefer phone calls", 1)

	resolution := Resolve(newMem, oldMem, ConflictPreferenceChange)
	assert.Equal(t, "evolution", resolution)
	assert.NotEqual(t, 0.3, oldMem.ImportanceScore)
	assert.Equal(t, newMem.ID, oldMem.Context["evolved_to"])
	assert.Equal(t, oldMem.ID, newMem.Context["evolved_from"])
}

func TestResolveFactualContradictionFlagsBothWithoutLoweringImportance(t *testing.T) {
	newMem := newMemory("u1", memory.KindFact, "I am 30 years old", 10)
	oldMem := newMemory("u1", memory.KindFact, "I am 25 years old", 1)

	resolution := Resolve(newMem, oldMem, ConflictFactual)
	assert.Equal(t, "flagged_for_review", resolution)
	assert.Equal(t, 0.5, oldMem.ImportanceScore)
	assert.Equal(t, newMem.ID, oldMem.Context["potential_conflict"])
}

func TestWorkerRunOnceCompletesWithoutPanic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	embedder := embedding.NewLocalProvider(16)

	a := newMemory("u1", memory.KindFact, "lives in berlin", 1)
	vecs, err := embedder.Embed(ctx, []string{a.Content})
	require.NoError(t, err)
	a.Embedding = vecs[0]
	require.NoError(t, store.Create(ctx, a))

	b := newMemory("u1", memory.KindFact, "lives in berlin currently", 2)
	vecs, err = embedder.Embed(ctx, []string{b.Content})
	require.NoError(t, err)
	b.Embedding = vecs[0]
	require.NoError(t, store.Create(ctx, b))

	cfg := config.LifecycleConfig{
		EntityTTLDays:         180,
		CommitmentGraceDays:   7,
		DecayChangeFloor:      0.05,
		ConsolidateSimilarity: 0.80,
		Interval:              time.Hour,
	}
	w := New(store, embedder, &stubLLM{reply: "lives in berlin"}, "test-model", cfg)

	require.NotPanics(t, func() {
		w.RunOnce(ctx, 5000)
	})
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	store := memory.NewInMemoryStore()
	embedder := embedding.NewLocalProvider(8)
	cfg := config.LifecycleConfig{Interval: 10 * time.Millisecond}
	w := New(store, embedder, &stubLLM{reply: "ok"}, "test-model", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func() int64 { return 1 })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
