// Package retrieve implements query-time memory search: intent
// classification, ANN candidate fetch, composite scoring, tiering, and
// silence mode.
package retrieve

import (
	"context"
	"sort"

	"memoryengine/internal/embedding"
	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

// silenceThreshold is the minimum top composite score required to surface
// any memory at all, unless the query is comprehensive/knowledge-seeking.
const silenceThreshold = 0.30

// Result is a single retrieved memory with its composite score and the
// components that produced it, kept for explainability.
type Result struct {
	Memory *memory.Memory
	Score  float64

	Similarity float64
	Recency    float64
	Usage      float64
	Confidence float64
	Conflict   bool
	Decay      float64
	Tier       memory.Tier
}

// Retriever searches a user's memory store for content relevant to a query.
type Retriever struct {
	store             memory.Store
	embedder          embedding.Provider
	classifier        Classifier
	coldSimilarityMin float64
}

// New constructs a Retriever. coldSimilarityMin is the minimum cosine
// similarity a COLD-tier memory must clear to be admitted (default 0.75).
func New(store memory.Store, embedder embedding.Provider, classifier Classifier, coldSimilarityMin float64) *Retriever {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	if coldSimilarityMin <= 0 {
		coldSimilarityMin = 0.75
	}
	return &Retriever{store: store, embedder: embedder, classifier: classifier, coldSimilarityMin: coldSimilarityMin}
}

// Search returns up to topK scored results for queryText, or an empty slice
// if silence mode suppresses the set. kindFilter restricts candidates to the
// given kinds; pass nil for no restriction (schedule intent defaults to
// {commitment, entity} when kindFilter is empty).
func (r *Retriever) Search(ctx context.Context, userID, queryText string, topK int, currentTurn int64, kindFilter []memory.Kind, minConfidence float64) ([]Result, error) {
	if topK == 0 {
		return nil, nil
	}
	log := observability.LoggerWithTrace(ctx)

	intent := r.classifier.Classify(queryText)
	comprehensive := IsComprehensive(queryText)

	effectiveKinds := kindFilter
	if intent == IntentSchedule && len(kindFilter) == 0 {
		effectiveKinds = []memory.Kind{memory.KindCommitment, memory.KindEntity}
	}

	vecs, err := r.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	queryVec := vecs[0]

	candidateK := topK * 3
	if candidateK < topK {
		candidateK = topK
	}
	if candidateK > 50 {
		candidateK = 50
	}

	scored, err := r.store.SimilaritySearch(ctx, userID, queryVec, candidateK, effectiveKinds)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(scored))
	for _, sm := range scored {
		m := sm.Memory
		if m.Confidence < minConfidence {
			continue
		}

		delta := currentTurn - m.SourceTurn
		tier := memory.TierFor(currentTurn, m.SourceTurn)
		if tier == memory.TierCold && sm.Score < r.coldSimilarityMin {
			continue
		}

		conflict := m.Context["conflict"] == "true"
		score := compositeScore(intent, sm.Score, m.Confidence, delta, m.AccessCount, conflict)

		results = append(results, Result{
			Memory:     m,
			Score:      score,
			Similarity: sm.Score,
			Recency:    recency(delta),
			Usage:      usage(m.AccessCount),
			Confidence: m.Confidence,
			Conflict:   conflict,
			Decay:      decayPenalty(delta),
			Tier:       tier,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}

	if len(results) > 0 && results[0].Score < silenceThreshold && !comprehensive {
		log.Debug().Float64("top_score", results[0].Score).Msg("retrieval_silence_mode")
		return nil, nil
	}
	return results, nil
}
