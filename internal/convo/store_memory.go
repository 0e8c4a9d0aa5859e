package convo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"memoryengine/internal/memerr"
)

// InMemoryStore is a Store implementation backed by plain maps, used by
// package tests and as a dependency-free fallback.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	turns map[string][]*Turn // conversation_id -> turns, chronological
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		convs: make(map[string]*Conversation),
		turns: make(map[string][]*Turn),
	}
}

func (s *InMemoryStore) Init(context.Context) error { return nil }

func (s *InMemoryStore) EnsureConversation(_ context.Context, userID, conversationID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID != "" {
		if c, ok := s.convs[conversationID]; ok {
			if c.UserID != userID {
				return nil, memerr.New(memerr.Forbidden, "convo.EnsureConversation", nil)
			}
			cp := *c
			return &cp, nil
		}
	} else {
		conversationID = uuid.NewString()
	}

	now := time.Now().UTC()
	c := &Conversation{ID: conversationID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.convs[conversationID] = c
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context, userID string) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Conversation
	for _, c := range s.convs {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[turn.ConversationID]
	if !ok {
		return memerr.New(memerr.NotFound, "convo.AppendTurn", nil)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	turn.CreatedAt = now

	cp := *turn
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], &cp)
	c.TurnCount++
	c.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) Tail(_ context.Context, conversationID string, n int) ([]*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.turns[conversationID]
	start := 0
	if n > 0 && len(all) > n {
		start = len(all) - n
	}
	out := make([]*Turn, 0, len(all)-start)
	for _, t := range all[start:] {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) Touch(_ context.Context, turnID string, memoriesCreated []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ts := range s.turns {
		for _, t := range ts {
			if t.ID == turnID {
				t.MemoriesCreated = memoriesCreated
				return nil
			}
		}
	}
	return memerr.New(memerr.NotFound, "convo.Touch", nil)
}
