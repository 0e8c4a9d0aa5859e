// Command memoryd serves the conversational memory engine's HTTP surface:
// turn submission, memory get/delete by id, housekeeping and health
// endpoints, plus the background lifecycle worker. Grounded on the
// http.ServeMux + graceful-shutdown wiring the teacher used for its own
// agent daemon, trimmed to the routes this engine needs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"memoryengine/internal/canon"
	"memoryengine/internal/config"
	"memoryengine/internal/convo"
	"memoryengine/internal/dedup"
	"memoryengine/internal/embedding"
	"memoryengine/internal/extract"
	"memoryengine/internal/lifecycle"
	llmproviders "memoryengine/internal/llm/providers"
	"memoryengine/internal/memerr"
	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
	"memoryengine/internal/orchestrator"
	"memoryengine/internal/persistence/databases"
	"memoryengine/internal/retrieve"
)

func main() {
	observability.InitLogger("", os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := observability.NewHTTPClient(nil)

	pool, err := databases.OpenPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres_pool_open_failed")
	}
	defer pool.Close()

	vectorStore, err := databases.NewVectorStore(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("vector_store_init_failed")
	}

	memStore := memory.NewPostgresStore(pool, vectorStore)
	if err := memStore.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("memory_store_init_failed")
	}

	convoStore := convo.NewPostgresStore(pool)
	if err := convoStore.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("conversation_store_init_failed")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	embedder := embedding.Build(cfg.Embed, redisClient, httpClient)

	llmClient, err := llmproviders.Build(cfg.LLM, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("llm_provider_build_failed")
	}

	canonicalizer := canon.New(memStore)
	deduplicator := dedup.New(memStore, cfg.Retrieval.DedupThreshold)
	extractor := extract.New(llmClient, cfg.LLM.Model, cfg.Retrieval.ConfidenceThreshold)
	retriever := retrieve.New(memStore, embedder, nil, cfg.Retrieval.ColdSimilarityMin)
	accountant := retrieve.NewAccountant(memStore, 256)
	defer accountant.Close()

	idempotency, err := orchestrator.NewRedisDedupeStore(cfg.Redis.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("idempotency_store_init_failed")
	}
	defer idempotency.Close()

	orc := orchestrator.New(convoStore, memStore, embedder, llmClient, cfg.LLM.Model,
		retriever, accountant, extractor, canonicalizer, deduplicator,
		cfg.Retrieval.TopK, cfg.Retrieval.ConfidenceThreshold).
		WithIdempotency(idempotency)

	worker := lifecycle.New(memStore, embedder, llmClient, cfg.LLM.Model, cfg.Lifecycle)
	go worker.Run(ctx, func() int64 { return time.Now().Unix() })

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newRouter(orc, memStore, convoStore, worker),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("memoryd_listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server_failed")
	}
}

func newRouter(orc *orchestrator.Orchestrator, memStore memory.Store, convoStore convo.Store, worker *lifecycle.Worker) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /v1/turns", handleTurn(orc))
	mux.HandleFunc("GET /v1/memories/{id}", handleGetMemory(memStore))
	mux.HandleFunc("DELETE /v1/memories/{id}", handleDeleteMemory(memStore))
	mux.HandleFunc("POST /v1/memories/consolidate", handleLifecycleTrigger(worker))
	mux.HandleFunc("POST /v1/memories/cleanup", handleLifecycleTrigger(worker))
	mux.HandleFunc("POST /v1/memories/decay", handleLifecycleTrigger(worker))

	return mux
}

func handleTurn(orc *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeError(w, memerr.New(memerr.Unauthorized, "handleTurn", nil))
			return
		}

		var body struct {
			ConversationID  string `json:"conversation_id"`
			TurnNumber      int64  `json:"turn_number"`
			Message         string `json:"message"`
			IncludeMemories bool   `json:"include_memories"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, memerr.New(memerr.Validation, "handleTurn.decode", err))
			return
		}

		resp, err := orc.Handle(r.Context(), orchestrator.TurnRequest{
			UserID:          userID,
			ConversationID:  body.ConversationID,
			TurnNumber:      body.TurnNumber,
			Message:         body.Message,
			IncludeMemories: body.IncludeMemories,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGetMemory(store memory.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		id := r.PathValue("id")
		m, err := store.Get(r.Context(), userID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func handleDeleteMemory(store memory.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		id := r.PathValue("id")
		if err := store.Delete(r.Context(), userID, id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleLifecycleTrigger runs one lifecycle pass synchronously, for manual
// invocation outside the worker's own ticker cadence.
func handleLifecycleTrigger(worker *lifecycle.Worker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		turn := time.Now().Unix()
		if q := r.URL.Query().Get("current_turn"); q != "" {
			if parsed, err := strconv.ParseInt(q, 10, 64); err == nil {
				turn = parsed
			}
		}
		worker.RunOnce(r.Context(), turn)
		w.WriteHeader(http.StatusAccepted)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch memerr.KindOf(err) {
	case memerr.NotFound:
		status = http.StatusNotFound
	case memerr.Unauthorized:
		status = http.StatusUnauthorized
	case memerr.Forbidden:
		status = http.StatusForbidden
	case memerr.Validation, memerr.ExtractionParseError:
		status = http.StatusBadRequest
	case memerr.DuplicateMemory:
		status = http.StatusConflict
	case memerr.DependencyUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
