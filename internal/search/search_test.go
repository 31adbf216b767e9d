package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/apperr"
	"relaychat/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "relaychat.db")
	st, err := store.Connect("sqlite://" + dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// P2: a message is findable as soon as it is created, via the FTS
// shadow table the store keeps in sync with every insert.
func TestSearchFindsMessageImmediately(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "alice", "hash")
	require.NoError(t, err)
	conv, err := st.CreateConversation(ctx, nil, []int64{alice.ID})
	require.NoError(t, err)

	msg, err := st.CreateMessage(ctx, conv.ID, &alice.ID, nil, "the quick brown fox", nil, nil)
	require.NoError(t, err)

	s := New(st)
	page, err := s.Run(ctx, Request{UserID: alice.ID, ConversationIDs: []int64{conv.ID}, Text: "quick fox", Order: store.OrderNewest, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
}

// Search results carry the distinct senders of the page so a caller
// doesn't need a follow-up per-message user lookup.
func TestSearchDecoratesResultsWithSenders(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "alice", "hash")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "bob@example.com", "bob", "hash")
	require.NoError(t, err)
	conv, err := st.CreateConversation(ctx, nil, []int64{alice.ID, bob.ID})
	require.NoError(t, err)

	_, err = st.CreateMessage(ctx, conv.ID, &alice.ID, nil, "hello world", nil, nil)
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, conv.ID, &bob.ID, nil, "hello again world", nil, nil)
	require.NoError(t, err)

	s := New(st)
	page, err := s.Run(ctx, Request{UserID: alice.ID, ConversationIDs: []int64{conv.ID}, Text: "hello world", Order: store.OrderNewest, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.Len(t, page.Users, 2)

	var names []string
	for _, u := range page.Users {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)
}

// A search scoped to a single conversation never surfaces a message
// from a conversation the caller isn't a member of, even if both
// conversations match the same text.
func TestSearchScopedToMembershipConversations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "alice", "hash")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "bob@example.com", "bob", "hash")
	require.NoError(t, err)

	aliceConv, err := st.CreateConversation(ctx, nil, []int64{alice.ID})
	require.NoError(t, err)
	bobConv, err := st.CreateConversation(ctx, nil, []int64{bob.ID})
	require.NoError(t, err)

	_, err = st.CreateMessage(ctx, aliceConv.ID, &alice.ID, nil, "shared keyword here", nil, nil)
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, bobConv.ID, &bob.ID, nil, "shared keyword here too", nil, nil)
	require.NoError(t, err)

	s := New(st)
	page, err := s.Run(ctx, Request{UserID: alice.ID, ConversationIDs: []int64{aliceConv.ID}, Text: "shared keyword", Order: store.OrderNewest, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, aliceConv.ID, page.Messages[0].ConversationID)
}

// An empty ConversationIDs list expands to every conversation the
// caller belongs to - never to "all conversations" - so a caller
// can't search someone else's private history by omitting the filter.
func TestSearchEmptyScopeExpandsToOwnConversations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "alice", "hash")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "bob@example.com", "bob", "hash")
	require.NoError(t, err)

	aliceConv, err := st.CreateConversation(ctx, nil, []int64{alice.ID})
	require.NoError(t, err)
	bobConv, err := st.CreateConversation(ctx, nil, []int64{bob.ID})
	require.NoError(t, err)

	_, err = st.CreateMessage(ctx, aliceConv.ID, &alice.ID, nil, "distinctive phrase", nil, nil)
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, bobConv.ID, &bob.ID, nil, "distinctive phrase", nil, nil)
	require.NoError(t, err)

	s := New(st)
	page, err := s.Run(ctx, Request{UserID: alice.ID, Text: "distinctive phrase", Order: store.OrderNewest, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, aliceConv.ID, page.Messages[0].ConversationID)
}

// Requesting a conversation the caller doesn't belong to is forbidden
// outright rather than silently dropped from the scope.
func TestSearchForeignConversationForbidden(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "alice", "hash")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "bob@example.com", "bob", "hash")
	require.NoError(t, err)
	bobConv, err := st.CreateConversation(ctx, nil, []int64{bob.ID})
	require.NoError(t, err)

	s := New(st)
	_, err = s.Run(ctx, Request{UserID: alice.ID, ConversationIDs: []int64{bobConv.ID}, Text: "anything", Order: store.OrderNewest})
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.As(err).Kind)
}
