package memory

import "context"

// ScoredMemory pairs a Memory with its ANN similarity score against a query
// vector (cosine similarity, higher is closer).
type ScoredMemory struct {
	Memory *Memory
	Score  float64
}

// Store is the durable backend for memory records: a row store for the full
// record plus an ANN index for the embedding. Implementations are
// responsible for keeping the two in sync (see Create/Delete).
type Store interface {
	Init(ctx context.Context) error

	// Create inserts a new memory. Implementations must return a
	// memerr.DuplicateMemory error (without writing) when a memory already
	// exists for (UserID, ContentHash).
	Create(ctx context.Context, m *Memory) error

	Get(ctx context.Context, userID, id string) (*Memory, error)

	// Update persists an in-place edit (canonicalizer corrections, decay
	// refresh, access-count bumps) and increments Version.
	Update(ctx context.Context, m *Memory) error

	Delete(ctx context.Context, userID, id string) error

	// ListByKey returns active memories for userID whose tags contain
	// canonicalKey, newest first, for the canonicalizer's lookup.
	ListByKey(ctx context.Context, userID, canonicalKey string) ([]*Memory, error)

	// RecentForDedup returns the most recently created memories for userID,
	// including their embeddings, for the deduplicator's similarity check.
	RecentForDedup(ctx context.Context, userID string, limit int) ([]*Memory, error)

	// SimilaritySearch runs an ANN query scoped to userID, optionally
	// restricted to kinds (empty = all kinds).
	SimilaritySearch(ctx context.Context, userID string, vector []float32, k int, kinds []Kind) ([]ScoredMemory, error)

	// Touch records that a memory was used at the given turn: bumps
	// AccessCount, LastAccessed and LastUsedTurn without incurring the cost
	// of a full Update (no version bump).
	Touch(ctx context.Context, userID, id string, turn int64, at int64) error

	// ListExpired returns memories whose lifecycle rules mark them for
	// deletion, for the lifecycle worker's TTL-expiry pass.
	ListExpired(ctx context.Context, entityTTLDays, commitmentGraceDays int) ([]*Memory, error)

	// ListForDecay returns active memories whose decay score may need a
	// refresh, for the lifecycle worker's periodic decay pass.
	ListForDecay(ctx context.Context, batchSize int) ([]*Memory, error)
}
