// Package lifecycle runs the offline maintenance passes over stored
// memories: TTL expiry, decay refresh, consolidation of near-duplicates, and
// conflict resolution between contradictory memories. None of this runs on
// the turn path; it is driven by its own ticker loop.
package lifecycle

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"memoryengine/internal/config"
	"memoryengine/internal/embedding"
	"memoryengine/internal/llm"
	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

// Worker owns one periodic maintenance loop over a memory.Store.
type Worker struct {
	store    memory.Store
	embedder embedding.Provider
	resolver *ConflictResolver
	merger   *Consolidator
	cfg      config.LifecycleConfig
}

// New constructs a Worker.
func New(store memory.Store, embedder embedding.Provider, llmClient llm.Provider, llmModel string, cfg config.LifecycleConfig) *Worker {
	return &Worker{
		store:    store,
		embedder: embedder,
		resolver: NewConflictResolver(llmClient, llmModel),
		merger:   NewConsolidator(llmClient, llmModel),
		cfg:      cfg,
	}
}

// Run blocks, ticking at cfg.Interval, until ctx is canceled. currentTurn
// supplies the lifecycle passes' notion of "now" in turn-space, since this
// system tracks recency in turns rather than wall-clock time.
func (w *Worker) Run(ctx context.Context, currentTurn func() int64) {
	interval := w.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx, currentTurn())
		}
	}
}

// RunOnce runs every maintenance task concurrently via errgroup, the same
// parallel-independent-stage idiom the teacher uses for its own multi-stage
// orchestration. A plain errgroup.Group (not WithContext) is used
// deliberately: one task's failure must not cancel the others, since §5
// treats these passes as eventually consistent with each other. Each task
// logs and swallows its own failure so RunOnce itself never errors.
func (w *Worker) RunOnce(ctx context.Context, currentTurn int64) {
	log := observability.LoggerWithTrace(ctx)

	var g errgroup.Group
	g.Go(func() error {
		if err := w.expireTTL(ctx); err != nil {
			log.Warn().Err(err).Msg("lifecycle_ttl_expiry_failed")
		}
		return nil
	})
	g.Go(func() error {
		if err := w.refreshDecay(ctx, currentTurn); err != nil {
			log.Warn().Err(err).Msg("lifecycle_decay_refresh_failed")
		}
		return nil
	})
	g.Go(func() error {
		if err := w.consolidate(ctx, currentTurn); err != nil {
			log.Warn().Err(err).Msg("lifecycle_consolidation_failed")
		}
		return nil
	})
	g.Go(func() error {
		if err := w.resolveConflicts(ctx); err != nil {
			log.Warn().Err(err).Msg("lifecycle_conflict_resolution_failed")
		}
		return nil
	})
	_ = g.Wait()
}

// expireTTL deletes entity memories past their TTL and fulfilled
// commitments past their grace window. Critical memories are never deleted
// here regardless of what the store's query selected.
func (w *Worker) expireTTL(ctx context.Context) error {
	expired, err := w.store.ListExpired(ctx, w.cfg.EntityTTLDays, w.cfg.CommitmentGraceDays)
	if err != nil {
		return err
	}
	log := observability.LoggerWithTrace(ctx)
	for _, m := range expired {
		if m.ImportanceLevel == "critical" {
			continue
		}
		if err := w.store.Delete(ctx, m.UserID, m.ID); err != nil {
			log.Warn().Err(err).Str("memory_id", m.ID).Msg("ttl_delete_failed")
		}
	}
	return nil
}

// refreshDecay recomputes decay_score for a batch of active memories,
// writing back only when the change clears DecayChangeFloor.
func (w *Worker) refreshDecay(ctx context.Context, currentTurn int64) error {
	candidates, err := w.store.ListForDecay(ctx, 500)
	if err != nil {
		return err
	}
	log := observability.LoggerWithTrace(ctx)
	floor := w.cfg.DecayChangeFloor
	if floor <= 0 {
		floor = 0.05
	}
	for _, m := range candidates {
		newScore := recomputeDecayScore(currentTurn, m.SourceTurn)
		if !changedEnough(m.DecayScore, newScore, floor) {
			continue
		}
		m.DecayScore = newScore
		if err := w.store.Update(ctx, m); err != nil {
			log.Warn().Err(err).Str("memory_id", m.ID).Msg("decay_writeback_failed")
		}
	}
	return nil
}

// consolidate clusters near-duplicate active memories (scoped per user and
// kind) and merges each cluster into one record via the LLM.
func (w *Worker) consolidate(ctx context.Context, currentTurn int64) error {
	candidates, err := w.store.ListForDecay(ctx, 500)
	if err != nil {
		return err
	}
	log := observability.LoggerWithTrace(ctx)
	threshold := w.cfg.ConsolidateSimilarity
	if threshold <= 0 {
		threshold = 0.90
	}

	for _, group := range cluster(candidates, threshold) {
		mergedContent := w.merger.Merge(ctx, group)
		merged := BuildConsolidated(group, mergedContent, currentTurn)

		vecs, err := w.embedder.Embed(ctx, []string{merged.Content})
		if err != nil {
			log.Warn().Err(err).Msg("consolidation_embed_failed_skipping_group")
			continue
		}
		merged.Embedding = vecs[0]

		if err := w.store.Create(ctx, merged); err != nil {
			log.Warn().Err(err).Msg("consolidation_create_failed_skipping_group")
			continue
		}
		for _, m := range group {
			if err := w.store.Delete(ctx, m.UserID, m.ID); err != nil {
				log.Warn().Err(err).Str("memory_id", m.ID).Msg("consolidation_delete_original_failed")
			}
		}
	}
	return nil
}

// resolveConflicts checks each active memory against the others belonging
// to the same user for contradictions, grouped by user so the pattern/LLM
// check never compares across users.
func (w *Worker) resolveConflicts(ctx context.Context) error {
	candidates, err := w.store.ListForDecay(ctx, 500)
	if err != nil {
		return err
	}
	log := observability.LoggerWithTrace(ctx)

	byUser := map[string][]*memory.Memory{}
	for _, m := range candidates {
		byUser[m.UserID] = append(byUser[m.UserID], m)
	}

	for _, userMemories := range byUser {
		checked := map[string]bool{}
		for _, m := range userMemories {
			if checked[m.ID] {
				continue
			}
			other, conflictType := w.resolver.Check(ctx, m, userMemories)
			if other == nil {
				continue
			}
			checked[m.ID] = true
			checked[other.ID] = true

			Resolve(m, other, conflictType)
			if err := w.store.Update(ctx, other); err != nil {
				log.Warn().Err(err).Str("memory_id", other.ID).Msg("conflict_update_old_failed")
			}
			if err := w.store.Update(ctx, m); err != nil {
				log.Warn().Err(err).Str("memory_id", m.ID).Msg("conflict_update_new_failed")
			}
		}
	}
	return nil
}
