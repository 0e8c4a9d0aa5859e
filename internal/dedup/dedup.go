// Package dedup rejects candidate memories that are near-duplicates of ones
// already stored, on top of the exact content-hash check the row store
// enforces at write time.
package dedup

import (
	"context"
	"math"

	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

const defaultRecentWindow = 50

// Deduplicator compares a candidate's embedding against a recent window of
// the user's memories and flags near-duplicates above a cosine threshold.
type Deduplicator struct {
	store        memory.Store
	threshold    float64
	recentWindow int
}

// New constructs a Deduplicator. threshold is the cosine similarity at or
// above which a candidate is considered a duplicate (default 0.95 per
// configuration).
func New(store memory.Store, threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = 0.95
	}
	return &Deduplicator{store: store, threshold: threshold, recentWindow: defaultRecentWindow}
}

// IsDuplicate reports whether candidate is a near-duplicate of an existing
// memory for the same user. It fails open: a lookup error is logged and
// treated as "not a duplicate" rather than blocking the write path.
func (d *Deduplicator) IsDuplicate(ctx context.Context, candidate *memory.Memory) (bool, *memory.Memory, error) {
	if len(candidate.Embedding) == 0 {
		return false, nil, nil
	}

	log := observability.LoggerWithTrace(ctx)
	recent, err := d.store.RecentForDedup(ctx, candidate.UserID, d.recentWindow)
	if err != nil {
		log.Warn().Err(err).Msg("dedup_lookup_failed_fail_open")
		return false, nil, nil
	}

	var best *memory.Memory
	var bestScore float64
	for _, m := range recent {
		if m.ID == candidate.ID || len(m.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(candidate.Embedding, m.Embedding)
		if score > bestScore {
			bestScore = score
			best = m
		}
	}

	if best != nil && bestScore >= d.threshold {
		log.Debug().Str("existing_id", best.ID).Float64("score", bestScore).Msg("dedup_near_duplicate")
		return true, best, nil
	}
	return false, nil, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
