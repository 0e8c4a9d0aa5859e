package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/canon"
	"memoryengine/internal/convo"
	"memoryengine/internal/dedup"
	"memoryengine/internal/embedding"
	"memoryengine/internal/extract"
	"memoryengine/internal/llm"
	"memoryengine/internal/memory"
	"memoryengine/internal/retrieve"
)

type stubLLM struct {
	reply string
	calls int
}

func (s *stubLLM) Chat(context.Context, []llm.Message, string) (string, error) {
	s.calls++
	return s.reply, nil
}

type stubDedupeStore struct {
	values map[string]string
}

func newStubDedupeStore() *stubDedupeStore {
	return &stubDedupeStore{values: map[string]string{}}
}

func (s *stubDedupeStore) Get(_ context.Context, key string) (string, error) {
	return s.values[key], nil
}

func (s *stubDedupeStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.values[key] = value
	return nil
}

func newTestOrchestrator(reply string) *Orchestrator {
	convoStore := convo.NewInMemoryStore()
	memStore := memory.NewInMemoryStore()
	embedder := embedding.NewLocalProvider(32)
	llmClient := &stubLLM{reply: reply}

	retriever := retrieve.New(memStore, embedder, nil, 0.75)
	accountant := retrieve.NewAccountant(memStore, 64)
	extractor := extract.New(llmClient, "test-model", 0.7)
	canonicalizer := canon.New(memStore)
	deduplicator := dedup.New(memStore, 0.95)

	return New(convoStore, memStore, embedder, llmClient, "test-model",
		retriever, accountant, extractor, canonicalizer, deduplicator, 10, 0)
}

func TestHandlePersistsTurnAndReturnsResponse(t *testing.T) {
	o := newTestOrchestrator("Hello there!")
	ctx := context.Background()

	resp, err := o.Handle(ctx, TurnRequest{UserID: "u1", TurnNumber: 1, Message: "hi", IncludeMemories: true})
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", resp.Response)
	assert.NotEmpty(t, resp.TurnID)
	assert.NotEmpty(t, resp.ConversationID)
}

func TestHandleReusesConversationAcrossTurns(t *testing.T) {
	o := newTestOrchestrator("ok")
	ctx := context.Background()

	first, err := o.Handle(ctx, TurnRequest{UserID: "u1", TurnNumber: 1, Message: "hi"})
	require.NoError(t, err)

	second, err := o.Handle(ctx, TurnRequest{UserID: "u1", ConversationID: first.ConversationID, TurnNumber: 2, Message: "again"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
}

func TestHandleWithoutIncludeMemoriesSkipsRetrieval(t *testing.T) {
	o := newTestOrchestrator("sure")
	ctx := context.Background()

	resp, err := o.Handle(ctx, TurnRequest{UserID: "u1", TurnNumber: 1, Message: "hi", IncludeMemories: false})
	require.NoError(t, err)
	assert.Empty(t, resp.ActiveMemories)
}

func TestHandleIsIdempotentForRetriedTurnNumber(t *testing.T) {
	convoStore := convo.NewInMemoryStore()
	memStore := memory.NewInMemoryStore()
	embedder := embedding.NewLocalProvider(32)
	chatLLM := &stubLLM{reply: "hello"}
	extractionLLM := &stubLLM{reply: "not json, so extraction yields nothing"}
	extractor := extract.New(extractionLLM, "test-model", 0.7)
	retriever := retrieve.New(memStore, embedder, nil, 0.75)
	canonicalizer := canon.New(memStore)
	deduplicator := dedup.New(memStore, 0.95)

	o := New(convoStore, memStore, embedder, chatLLM, "test-model",
		retriever, nil, extractor, canonicalizer, deduplicator, 10, 0).
		WithIdempotency(newStubDedupeStore())

	ctx := context.Background()
	first, err := o.Handle(ctx, TurnRequest{UserID: "u1", TurnNumber: 1, Message: "hi"})
	require.NoError(t, err)

	second, err := o.Handle(ctx, TurnRequest{UserID: "u1", ConversationID: first.ConversationID, TurnNumber: 1, Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, first.TurnID, second.TurnID)
	assert.Equal(t, 1, chatLLM.calls)
}

func TestDetachedExtractionEventuallyCreatesMemory(t *testing.T) {
	reply := `[{"type":"fact","content":"I live in Berlin","confidence":0.9}]`
	convoStore := convo.NewInMemoryStore()
	memStore := memory.NewInMemoryStore()
	embedder := embedding.NewLocalProvider(32)
	extractionLLM := &stubLLM{reply: reply}
	chatLLM := &stubLLM{reply: "noted"}

	retriever := retrieve.New(memStore, embedder, nil, 0.75)
	extractor := extract.New(extractionLLM, "test-model", 0.7)
	canonicalizer := canon.New(memStore)
	deduplicator := dedup.New(memStore, 0.95)

	o := New(convoStore, memStore, embedder, chatLLM, "test-model",
		retriever, nil, extractor, canonicalizer, deduplicator, 10, 0)

	_, err := o.Handle(context.Background(), TurnRequest{UserID: "u1", TurnNumber: 1, Message: "I live in Berlin"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		recent, err := memStore.RecentForDedup(context.Background(), "u1", 10)
		return err == nil && len(recent) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
