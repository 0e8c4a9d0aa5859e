// Package orchestrator drives a single conversational turn end to end:
// resolve the conversation, retrieve relevant memories, compose a prompt,
// call the LLM, persist the turn, and detach the write-path side effects
// (extraction, canonicalization, dedup, access accounting) so they never
// block the response.
package orchestrator

import (
	"context"
	"time"

	"memoryengine/internal/canon"
	"memoryengine/internal/convo"
	"memoryengine/internal/dedup"
	"memoryengine/internal/embedding"
	"memoryengine/internal/extract"
	"memoryengine/internal/llm"
	"memoryengine/internal/memerr"
	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
	"memoryengine/internal/retrieve"
)

const detachedTaskTimeout = 30 * time.Second

// idempotencyTTL bounds how long a (conversation, turn_number) pair is
// remembered for retry detection. A client retrying a POST /v1/turns after a
// network blip within this window gets the original turn_id back instead of
// generating (and billing) a second LLM call.
const idempotencyTTL = 10 * time.Minute

// TurnRequest is one inbound turn.
type TurnRequest struct {
	UserID         string
	ConversationID string
	TurnNumber     int64
	Message        string
	IncludeMemories bool
}

// ActiveMemory is one memory surfaced to the caller alongside the response.
type ActiveMemory struct {
	ID         string
	Content    string
	Kind       memory.Kind
	SourceTurn int64
	Score      float64
	Confidence float64
}

// TurnResponse is the synchronous result of handling a turn.
type TurnResponse struct {
	TurnID         string
	ConversationID string
	TurnNumber     int64
	Response       string
	ActiveMemories []ActiveMemory
	RetrievalMS    int64
	ProcessingMS   int64
}

// Orchestrator wires together every component on the turn path. Its fields
// are long-lived collaborators, not request-scoped; detached goroutines
// spawned from Handle call back into these fields directly rather than
// closing over anything passed in by an HTTP handler.
type Orchestrator struct {
	convoStore convo.Store
	memStore   memory.Store
	embedder   embedding.Provider
	llmClient  llm.Provider
	llmModel   string

	retriever  *retrieve.Retriever
	accountant *retrieve.Accountant
	extractor  *extract.Extractor
	canon      *canon.Canonicalizer
	dedup      *dedup.Deduplicator

	// idempotency is optional; when set, retried submissions of the same
	// (conversation, turn_number) within idempotencyTTL return the original
	// turn_id rather than re-running generation.
	idempotency DedupeStore

	topK          int
	minConfidence float64
}

// New constructs an Orchestrator.
func New(
	convoStore convo.Store,
	memStore memory.Store,
	embedder embedding.Provider,
	llmClient llm.Provider,
	llmModel string,
	retriever *retrieve.Retriever,
	accountant *retrieve.Accountant,
	extractor *extract.Extractor,
	canonicalizer *canon.Canonicalizer,
	deduplicator *dedup.Deduplicator,
	topK int,
	minConfidence float64,
) *Orchestrator {
	if topK <= 0 {
		topK = 10
	}
	return &Orchestrator{
		convoStore:    convoStore,
		memStore:      memStore,
		embedder:      embedder,
		llmClient:     llmClient,
		llmModel:      llmModel,
		retriever:     retriever,
		accountant:    accountant,
		extractor:     extractor,
		canon:         canonicalizer,
		dedup:         deduplicator,
		topK:          topK,
		minConfidence: minConfidence,
	}
}

// WithIdempotency attaches a DedupeStore for turn-retry detection and
// returns the same Orchestrator for chaining.
func (o *Orchestrator) WithIdempotency(store DedupeStore) *Orchestrator {
	o.idempotency = store
	return o
}

// Handle runs the full per-turn state machine. Steps 1-5 are synchronous;
// step 6 (extraction, canonicalization, dedup, access accounting) is
// detached and never affects this call's error or latency.
func (o *Orchestrator) Handle(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	start := time.Now()
	log := observability.LoggerWithTrace(ctx)

	// 1. Resolve conversation.
	conversation, err := o.convoStore.EnsureConversation(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	isFirstTurn := conversation.TurnCount == 0

	if o.idempotency != nil {
		key := idempotencyKey(conversation.ID, req.TurnNumber)
		if existingTurnID, err := o.idempotency.Get(ctx, key); err == nil && existingTurnID != "" {
			log.Debug().Str("turn_id", existingTurnID).Msg("turn_idempotent_replay")
			return &TurnResponse{
				TurnID:         existingTurnID,
				ConversationID: conversation.ID,
				TurnNumber:     req.TurnNumber,
				ProcessingMS:   time.Since(start).Milliseconds(),
			}, nil
		}
	}

	// 2. Retrieve, unless opted out.
	var results []retrieve.Result
	var retrievalMS int64
	scheduleIntent := false
	comprehensive := false
	if req.IncludeMemories {
		retrievalStart := time.Now()
		classifier := retrieve.KeywordClassifier{}
		intent := classifier.Classify(req.Message)
		scheduleIntent = intent == retrieve.IntentSchedule
		comprehensive = retrieve.IsComprehensive(req.Message)

		results, err = o.retriever.Search(ctx, req.UserID, req.Message, o.topK, req.TurnNumber, nil, o.minConfidence)
		if err != nil {
			log.Warn().Err(err).Msg("retrieval_failed_proceeding_empty")
			results = nil
		}
		retrievalMS = time.Since(retrievalStart).Milliseconds()
	}

	// 3. Compose context: system prompt + short-term tail + new message.
	systemPrompt := composeSystemPrompt(req.TurnNumber, results, comprehensive, scheduleIntent, isFirstTurn)
	tail, err := o.convoStore.Tail(ctx, conversation.ID, 5)
	if err != nil {
		log.Warn().Err(err).Msg("tail_fetch_failed_proceeding_without_history")
		tail = nil
	}

	messages := make([]llm.Message, 0, len(tail)*2+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, t := range tail {
		messages = append(messages, llm.Message{Role: "user", Content: t.UserMessage})
		messages = append(messages, llm.Message{Role: "assistant", Content: t.AssistantMessage})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	// 4. Generate.
	reply, err := o.llmClient.Chat(ctx, messages, o.llmModel)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "orchestrator.Handle.generate", err)
	}

	// 5. Persist turn.
	retrievedIDs := make([]string, 0, len(results))
	activeMemories := make([]ActiveMemory, 0, len(results))
	for _, r := range results {
		retrievedIDs = append(retrievedIDs, r.Memory.ID)
		activeMemories = append(activeMemories, ActiveMemory{
			ID:         r.Memory.ID,
			Content:    r.Memory.Content,
			Kind:       r.Memory.Kind,
			SourceTurn: r.Memory.SourceTurn,
			Score:      r.Score,
			Confidence: r.Memory.Confidence,
		})
	}

	turn := &convo.Turn{
		ConversationID:    conversation.ID,
		UserID:            req.UserID,
		TurnNumber:        req.TurnNumber,
		UserMessage:       req.Message,
		AssistantMessage:  reply,
		MemoriesRetrieved: retrievedIDs,
	}
	if err := o.convoStore.AppendTurn(ctx, turn); err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "orchestrator.Handle.persist", err)
	}

	if o.idempotency != nil {
		key := idempotencyKey(conversation.ID, req.TurnNumber)
		if err := o.idempotency.Set(ctx, key, turn.ID, idempotencyTTL); err != nil {
			log.Warn().Err(err).Msg("idempotency_set_failed")
		}
	}

	// 6. Detach side effects. Only primitive copies cross the goroutine
	// boundary; the closures below call back into o's own long-lived
	// collaborators, never anything scoped to this request's ctx.
	userID, userMsg, assistantMsg, turnNumber := req.UserID, req.Message, reply, req.TurnNumber
	go o.runDetachedExtraction(userID, userMsg, assistantMsg, turnNumber)
	if o.accountant != nil {
		o.accountant.RecordResults(userID, turnNumber, results)
	}

	return &TurnResponse{
		TurnID:         turn.ID,
		ConversationID: conversation.ID,
		TurnNumber:     req.TurnNumber,
		Response:       reply,
		ActiveMemories: activeMemories,
		RetrievalMS:    retrievalMS,
		ProcessingMS:   time.Since(start).Milliseconds(),
	}, nil
}

// runDetachedExtraction runs extraction -> canonicalize -> dedup -> create
// for one (user, turn) pair. It is launched via go from Handle and must
// never panic or block the request path; all failures are logged and
// swallowed.
func (o *Orchestrator) runDetachedExtraction(userID, userMsg, assistantMsg string, turnNumber int64) {
	ctx, cancel := context.WithTimeout(context.Background(), detachedTaskTimeout)
	defer cancel()
	log := observability.LoggerWithTrace(ctx)

	candidates := o.extractor.Extract(ctx, userMsg, assistantMsg)
	for _, c := range candidates {
		m := &memory.Memory{
			UserID:     userID,
			Kind:       c.Kind,
			Content:    c.Content,
			Confidence: c.Confidence,
			Tags:       c.Tags,
			Entities:   c.Entities,
			Context:    c.Context,
			SourceTurn: turnNumber,
		}

		vecs, err := o.embedder.Embed(ctx, []string{m.Content})
		if err != nil {
			log.Warn().Err(err).Msg("detached_extraction_embed_failed")
			continue
		}
		m.Embedding = vecs[0]

		if existing, err := o.canon.Resolve(ctx, m); err != nil {
			log.Warn().Err(err).Msg("detached_extraction_canonicalize_failed")
		} else if existing != nil {
			canon.ApplyUpdate(existing, m)
			if err := o.memStore.Update(ctx, existing); err != nil {
				log.Warn().Err(err).Msg("detached_extraction_canonical_update_failed")
			}
			continue
		}

		if isDup, _, err := o.dedup.IsDuplicate(ctx, m); err != nil {
			log.Warn().Err(err).Msg("detached_extraction_dedup_check_failed")
		} else if isDup {
			continue
		}

		if err := o.memStore.Create(ctx, m); err != nil {
			if memerr.KindOf(err) != memerr.DuplicateMemory {
				log.Warn().Err(err).Msg("detached_extraction_create_failed")
			}
		}
	}
}
