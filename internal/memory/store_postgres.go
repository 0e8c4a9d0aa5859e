package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"memoryengine/internal/memerr"
	"memoryengine/internal/persistence/databases"
)

// PostgresStore is a pgx-backed row store paired with a pluggable ANN index
// (Qdrant or pgvector, selected by databases.NewVectorStore). It mirrors the
// migration style of the teacher's evolving-memory store: idempotent
// CREATE TABLE IF NOT EXISTS plus ALTER TABLE ADD COLUMN IF NOT EXISTS for
// forward-compatible schema growth.
type PostgresStore struct {
	pool   *pgxpool.Pool
	vector databases.VectorStore
}

// NewPostgresStore constructs a Store over pool, indexing embeddings in vec.
func NewPostgresStore(pool *pgxpool.Pool, vec databases.VectorStore) *PostgresStore {
	return &PostgresStore{pool: pool, vector: vec}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS memories (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    importance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    importance_level TEXT NOT NULL DEFAULT '',
    decay_score DOUBLE PRECISION NOT NULL DEFAULT 1,
    tags TEXT[] NOT NULL DEFAULT '{}',
    entities TEXT[] NOT NULL DEFAULT '{}',
    context JSONB NOT NULL DEFAULT '{}'::jsonb,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed TIMESTAMPTZ,
    source_turn BIGINT NOT NULL DEFAULT 0,
    last_used_turn BIGINT NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 1,
    deleted_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, content_hash)
);

CREATE INDEX IF NOT EXISTS memories_user_kind_idx ON memories(user_id, kind) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS memories_user_created_idx ON memories(user_id, created_at DESC);

ALTER TABLE memories ADD COLUMN IF NOT EXISTS last_used_turn BIGINT NOT NULL DEFAULT 0;
ALTER TABLE memories ADD COLUMN IF NOT EXISTS source_turn BIGINT NOT NULL DEFAULT 0;
`)
	return err
}

const memoryColumns = `id, user_id, kind, content, content_hash, confidence, importance_score,
	importance_level, decay_score, tags, entities, context, access_count,
	last_accessed, source_turn, last_used_turn, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ContentHash == "" {
		m.ContentHash = ContentHashOf(m.UserID, m.Content)
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Version == 0 {
		m.Version = 1
	}
	ctxBytes, err := json.Marshal(m.Context)
	if err != nil {
		return memerr.New(memerr.Internal, "memory.Create", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO memories (id, user_id, kind, content, content_hash, confidence, importance_score,
	importance_level, decay_score, tags, entities, context, access_count, last_accessed,
	source_turn, last_used_turn, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		m.ID, m.UserID, string(m.Kind), m.Content, m.ContentHash, m.Confidence, m.ImportanceScore,
		m.ImportanceLevel, m.DecayScore, m.Tags, m.Entities, ctxBytes, m.AccessCount, nullTime(m.LastAccessed),
		m.SourceTurn, m.LastUsedTurn, m.Version, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return memerr.New(memerr.DuplicateMemory, "memory.Create", err)
		}
		return memerr.New(memerr.DependencyUnavailable, "memory.Create", err)
	}

	if s.vector != nil && len(m.Embedding) > 0 {
		meta := map[string]string{"user_id": m.UserID, "kind": string(m.Kind)}
		if err := s.vector.Upsert(ctx, m.ID, m.Embedding, meta); err != nil {
			// Row is already committed and stays; the index error is
			// returned, and nothing in this package re-indexes the row later.
			return memerr.New(memerr.DependencyUnavailable, "memory.Create.index", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (*Memory, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE user_id=$1 AND id=$2 AND deleted_at IS NULL`, userID, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memerr.New(memerr.NotFound, "memory.Get", err)
	}
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "memory.Get", err)
	}
	return m, nil
}

func (s *PostgresStore) Update(ctx context.Context, m *Memory) error {
	m.UpdatedAt = time.Now().UTC()
	m.Version++
	ctxBytes, err := json.Marshal(m.Context)
	if err != nil {
		return memerr.New(memerr.Internal, "memory.Update", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE memories SET content=$3, content_hash=$4, confidence=$5, importance_score=$6,
	importance_level=$7, decay_score=$8, tags=$9, entities=$10, context=$11,
	access_count=$12, last_accessed=$13, source_turn=$14, last_used_turn=$15, version=$16, updated_at=$17
WHERE user_id=$1 AND id=$2 AND deleted_at IS NULL`,
		m.UserID, m.ID, m.Content, m.ContentHash, m.Confidence, m.ImportanceScore, m.ImportanceLevel,
		m.DecayScore, m.Tags, m.Entities, ctxBytes, m.AccessCount, nullTime(m.LastAccessed),
		m.SourceTurn, m.LastUsedTurn, m.Version, m.UpdatedAt)
	if err != nil {
		return memerr.New(memerr.DependencyUnavailable, "memory.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return memerr.New(memerr.NotFound, "memory.Update", nil)
	}
	if s.vector != nil && len(m.Embedding) > 0 {
		meta := map[string]string{"user_id": m.UserID, "kind": string(m.Kind)}
		if err := s.vector.Upsert(ctx, m.ID, m.Embedding, meta); err != nil {
			return memerr.New(memerr.DependencyUnavailable, "memory.Update.index", err)
		}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE memories SET deleted_at=NOW() WHERE user_id=$1 AND id=$2 AND deleted_at IS NULL`, userID, id)
	if err != nil {
		return memerr.New(memerr.DependencyUnavailable, "memory.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return memerr.New(memerr.NotFound, "memory.Delete", nil)
	}
	if s.vector != nil {
		if err := s.vector.Delete(ctx, id); err != nil {
			return memerr.New(memerr.DependencyUnavailable, "memory.Delete.index", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListByKey(ctx context.Context, userID, canonicalKey string) ([]*Memory, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+memoryColumns+` FROM memories
WHERE user_id=$1 AND deleted_at IS NULL AND $2 = ANY(tags)
ORDER BY created_at DESC`, userID, canonicalKey)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "memory.ListByKey", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *PostgresStore) RecentForDedup(ctx context.Context, userID string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+memoryColumns+` FROM memories
WHERE user_id=$1 AND deleted_at IS NULL
ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "memory.RecentForDedup", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *PostgresStore) SimilaritySearch(ctx context.Context, userID string, vector []float32, k int, kinds []Kind) ([]ScoredMemory, error) {
	if s.vector == nil {
		return nil, nil
	}
	filter := map[string]string{"user_id": userID}
	// The ANN filter only supports exact match per field; a single kind
	// restriction is pushed down, multi-kind filters (such as the
	// schedule-intent {commitment, entity} default) are applied after the
	// row fetch below.
	if len(kinds) == 1 {
		filter["kind"] = string(kinds[0])
	}
	hits, err := s.vector.SimilaritySearch(ctx, vector, k, filter)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "memory.SimilaritySearch", err)
	}
	kindSet := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	out := make([]ScoredMemory, 0, len(hits))
	for _, h := range hits {
		m, err := s.Get(ctx, userID, h.ID)
		if err != nil {
			continue // deleted between index and row fetch; skip rather than fail the query
		}
		if len(kindSet) > 1 && !kindSet[m.Kind] {
			continue
		}
		out = append(out, ScoredMemory{Memory: m, Score: h.Score})
	}
	return out, nil
}

func (s *PostgresStore) Touch(ctx context.Context, userID, id string, turn int64, atUnix int64) error {
	_, err := s.pool.Exec(ctx, `
UPDATE memories SET access_count = access_count + 1, last_accessed = to_timestamp($4), last_used_turn = $3
WHERE user_id=$1 AND id=$2 AND deleted_at IS NULL`, userID, id, turn, atUnix)
	if err != nil {
		return memerr.New(memerr.DependencyUnavailable, "memory.Touch", err)
	}
	return nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, entityTTLDays, commitmentGraceDays int) ([]*Memory, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+memoryColumns+` FROM memories
WHERE deleted_at IS NULL AND (
	(kind=$1 AND last_accessed < NOW() - ($2 || ' days')::interval)
	OR (kind=$3 AND context->>'due_at' IS NOT NULL
		AND (context->>'due_at')::timestamptz < NOW() - ($4 || ' days')::interval)
)`, string(KindEntity), entityTTLDays, string(KindCommitment), commitmentGraceDays)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "memory.ListExpired", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *PostgresStore) ListForDecay(ctx context.Context, batchSize int) ([]*Memory, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+memoryColumns+` FROM memories
WHERE deleted_at IS NULL
ORDER BY updated_at ASC LIMIT $1`, batchSize)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "memory.ListForDecay", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var (
		m         Memory
		kind      string
		ctxBytes  []byte
		lastAcc   *time.Time
	)
	if err := row.Scan(&m.ID, &m.UserID, &kind, &m.Content, &m.ContentHash, &m.Confidence,
		&m.ImportanceScore, &m.ImportanceLevel, &m.DecayScore, &m.Tags, &m.Entities, &ctxBytes,
		&m.AccessCount, &lastAcc, &m.SourceTurn, &m.LastUsedTurn, &m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Kind = Kind(kind)
	if lastAcc != nil {
		m.LastAccessed = *lastAcc
	}
	m.Context = map[string]string{}
	if len(ctxBytes) > 0 {
		_ = json.Unmarshal(ctxBytes, &m.Context)
	}
	return &m, nil
}

func scanMemories(rows pgx.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memerr.New(memerr.DependencyUnavailable, "memory.scan", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
