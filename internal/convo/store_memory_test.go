package convo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/memerr"
)

func TestEnsureConversationCreatesAndReuses(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	c1, err := s.EnsureConversation(ctx, "u1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, c1.ID)

	c2, err := s.EnsureConversation(ctx, "u1", c1.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
}

func TestEnsureConversationRejectsOtherUser(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	c1, err := s.EnsureConversation(ctx, "u1", "")
	require.NoError(t, err)

	_, err = s.EnsureConversation(ctx, "u2", c1.ID)
	require.Error(t, err)
	assert.Equal(t, memerr.Forbidden, memerr.KindOf(err))
}

func TestAppendTurnBumpsConversation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c, err := s.EnsureConversation(ctx, "u1", "")
	require.NoError(t, err)

	err = s.AppendTurn(ctx, &Turn{ConversationID: c.ID, UserID: "u1", TurnNumber: 1, UserMessage: "hi", AssistantMessage: "hello"})
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].TurnCount)
}

func TestTailReturnsChronologicalOrderBounded(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c, err := s.EnsureConversation(ctx, "u1", "")
	require.NoError(t, err)

	for i := int64(1); i <= 7; i++ {
		require.NoError(t, s.AppendTurn(ctx, &Turn{ConversationID: c.ID, UserID: "u1", TurnNumber: i, UserMessage: "m"}))
	}

	tail, err := s.Tail(ctx, c.ID, 5)
	require.NoError(t, err)
	require.Len(t, tail, 5)
	assert.Equal(t, int64(3), tail[0].TurnNumber)
	assert.Equal(t, int64(7), tail[len(tail)-1].TurnNumber)
}

func TestTouchSetsMemoriesCreated(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c, err := s.EnsureConversation(ctx, "u1", "")
	require.NoError(t, err)

	turn := &Turn{ConversationID: c.ID, UserID: "u1", TurnNumber: 1}
	require.NoError(t, s.AppendTurn(ctx, turn))

	require.NoError(t, s.Touch(ctx, turn.ID, []string{"mem-1", "mem-2"}))

	tail, err := s.Tail(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, []string{"mem-1", "mem-2"}, tail[0].MemoriesCreated)
}
