// Package databases provides pluggable backends for the memory engine's
// approximate-nearest-neighbor index. The row store of record lives in
// Postgres via pgx; this package only concerns the vector side, which can be
// satisfied by Qdrant, pgvector, or an in-memory stand-in for tests.
package databases

import "context"

// VectorResult is a single nearest-neighbor hit. Score is cosine similarity
// in [-1, 1] for the Qdrant and pgvector-cosine backends; higher is closer.
type VectorResult struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorStore is the minimum interface a memory engine ANN backend must
// satisfy. Callers pass the memory ID as the point ID and a metadata map
// (user_id, kind, ...) used for filtered search.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}
