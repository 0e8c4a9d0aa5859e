// Package convo is the short-term log: an append-only record of
// conversations and the turns within them, used by the orchestrator to
// build the recent-tail portion of the prompt and by the API layer for
// conversation listing.
package convo

import "time"

// Conversation is a single chat session owned by a user.
type Conversation struct {
	ID        string
	UserID    string
	TurnCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one user/assistant exchange within a Conversation.
type Turn struct {
	ID               string
	ConversationID   string
	UserID           string
	TurnNumber       int64
	UserMessage      string
	AssistantMessage string
	MemoriesRetrieved []string
	MemoriesCreated   []string
	CreatedAt        time.Time
}
