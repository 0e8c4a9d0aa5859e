package convo

import "context"

// Store is the short-term log's persistence contract: conversations and the
// turns within them.
type Store interface {
	Init(ctx context.Context) error

	// EnsureConversation creates conversationID for userID if it does not
	// already exist, and is a no-op (other than an ownership check) if it
	// does. Returns memerr.Forbidden if conversationID belongs to another
	// user.
	EnsureConversation(ctx context.Context, userID, conversationID string) (*Conversation, error)

	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// AppendTurn inserts turn and bumps its conversation's turn_count and
	// updated_at in the same logical operation.
	AppendTurn(ctx context.Context, turn *Turn) error

	// Tail returns the last n turns of conversationID in chronological
	// order.
	Tail(ctx context.Context, conversationID string, n int) ([]*Turn, error)

	// Touch sets the memories_created ids of an already-persisted turn. Used
	// by detached side-effects that learn the created-memory ids only after
	// the turn row has been written.
	Touch(ctx context.Context, turnID string, memoriesCreated []string) error
}
