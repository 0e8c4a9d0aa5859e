package convo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"memoryengine/internal/memerr"
)

// PostgresStore is a pgx-backed Store, following the same idempotent
// migration style as the memory row store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    turn_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversation_turns (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id),
    user_id TEXT NOT NULL,
    turn_number BIGINT NOT NULL,
    user_message TEXT NOT NULL,
    assistant_message TEXT NOT NULL,
    memories_retrieved TEXT[] NOT NULL DEFAULT '{}',
    memories_created TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS conversation_turns_conv_idx ON conversation_turns(conversation_id, turn_number DESC);
CREATE INDEX IF NOT EXISTS conversations_user_idx ON conversations(user_id, updated_at DESC);

ALTER TABLE conversation_turns ADD COLUMN IF NOT EXISTS memories_created TEXT[] NOT NULL DEFAULT '{}';
`)
	return err
}

func (s *PostgresStore) EnsureConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	var c Conversation
	err := s.pool.QueryRow(ctx, `
SELECT id, user_id, turn_count, created_at, updated_at
FROM conversations WHERE id = $1`, conversationID).
		Scan(&c.ID, &c.UserID, &c.TurnCount, &c.CreatedAt, &c.UpdatedAt)

	if err == nil {
		if c.UserID != userID {
			return nil, memerr.New(memerr.Forbidden, "convo.EnsureConversation", nil)
		}
		return &c, nil
	}
	if err != pgx.ErrNoRows {
		return nil, memerr.New(memerr.DependencyUnavailable, "convo.EnsureConversation", err)
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
INSERT INTO conversations (id, user_id, turn_count, created_at, updated_at)
VALUES ($1, $2, 0, $3, $3)`, conversationID, userID, now)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "convo.EnsureConversation", err)
	}
	return &Conversation{ID: conversationID, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, turn_count, created_at, updated_at
FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "convo.ListConversations", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.TurnCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, memerr.New(memerr.Internal, "convo.ListConversations", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn *Turn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return memerr.New(memerr.DependencyUnavailable, "convo.AppendTurn", err)
	}
	defer tx.Rollback(ctx)

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	turn.CreatedAt = now

	_, err = tx.Exec(ctx, `
INSERT INTO conversation_turns
    (id, conversation_id, user_id, turn_number, user_message, assistant_message,
     memories_retrieved, memories_created, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		turn.ID, turn.ConversationID, turn.UserID, turn.TurnNumber,
		turn.UserMessage, turn.AssistantMessage,
		turn.MemoriesRetrieved, turn.MemoriesCreated, now)
	if err != nil {
		return memerr.New(memerr.DependencyUnavailable, "convo.AppendTurn", err)
	}

	_, err = tx.Exec(ctx, `
UPDATE conversations SET turn_count = turn_count + 1, updated_at = $2 WHERE id = $1`,
		turn.ConversationID, now)
	if err != nil {
		return memerr.New(memerr.DependencyUnavailable, "convo.AppendTurn", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return memerr.New(memerr.DependencyUnavailable, "convo.AppendTurn", err)
	}
	return nil
}

func (s *PostgresStore) Tail(ctx context.Context, conversationID string, n int) ([]*Turn, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, user_id, turn_number, user_message, assistant_message,
       memories_retrieved, memories_created, created_at
FROM conversation_turns
WHERE conversation_id = $1
ORDER BY turn_number DESC
LIMIT $2`, conversationID, n)
	if err != nil {
		return nil, memerr.New(memerr.DependencyUnavailable, "convo.Tail", err)
	}
	defer rows.Close()

	var out []*Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.TurnNumber,
			&t.UserMessage, &t.AssistantMessage, &t.MemoriesRetrieved, &t.MemoriesCreated, &t.CreatedAt); err != nil {
			return nil, memerr.New(memerr.Internal, "convo.Tail", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.New(memerr.Internal, "convo.Tail", err)
	}

	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) Touch(ctx context.Context, turnID string, memoriesCreated []string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE conversation_turns SET memories_created = $2 WHERE id = $1`, turnID, memoriesCreated)
	if err != nil {
		return memerr.New(memerr.DependencyUnavailable, "convo.Touch", err)
	}
	return nil
}
