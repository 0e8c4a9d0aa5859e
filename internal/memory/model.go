// Package memory implements the memory store: the durable row store for
// memory records plus the ANN index that backs similarity search over them.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Kind classifies a memory record. The retriever's scoring profile and the
// lifecycle worker's TTL/decay rules both branch on Kind.
type Kind string

const (
	KindPreference  Kind = "preference"
	KindFact        Kind = "fact"
	KindCommitment  Kind = "commitment"
	KindInstruction Kind = "instruction"
	KindEntity      Kind = "entity"
)

// Tier is the recency bucket assigned at retrieval time (HOT/WARM/COLD),
// computed from the age of the current turn relative to SourceTurn.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Memory is a single durable unit of long-term conversational memory.
type Memory struct {
	ID        string
	UserID    string
	Kind      Kind
	Content   string
	ContentHash string

	Embedding []float32

	Confidence      float64
	ImportanceScore float64
	ImportanceLevel string
	DecayScore      float64

	Tags     []string
	Entities []string
	Context  map[string]string

	// SourceTurn is the turn this memory was extracted on (or last updated
	// to, for canonical in-place updates). Retrieval scoring's recency,
	// tiering, and decay terms are all relative to this field.
	SourceTurn int64

	AccessCount  int
	LastAccessed time.Time
	// LastUsedTurn is bumped on every retrieval hit for observability only;
	// it is never read by the composite scorer.
	LastUsedTurn int64

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentHashOf computes the stable dedup key for (userID, content): a
// case-folded, whitespace-normalized hash so trivial formatting differences
// don't defeat the exact-duplicate check.
func ContentHashOf(userID, content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(userID + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}

// TierFor classifies a memory's recency tier given the current turn number.
// Δ ≤ 50 turns is HOT, ≤ 500 is WARM, otherwise COLD.
func TierFor(currentTurn, sourceTurn int64) Tier {
	delta := currentTurn - sourceTurn
	switch {
	case delta <= 50:
		return TierHot
	case delta <= 500:
		return TierWarm
	default:
		return TierCold
	}
}
