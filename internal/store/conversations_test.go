package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteMembersRequiresFriendship(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")

	conv, err := st.CreateConversation(ctx, nil, []int64{alice.ID})
	require.NoError(t, err)

	_, _, err = st.InviteMembers(ctx, &conv.ID, alice.ID, []int64{bob.ID})
	assert.ErrorIs(t, err, ErrNotFriends)
}

// Inviting an already-present member twice is a no-op: one Membership
// row survives and the second invite reports nothing added
// (idempotence, spec.md §8).
func TestInviteMembersIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")
	_, err := st.HandleFriendRequest(ctx, bob.ID, alice.ID, true)
	require.NoError(t, err)
	_, err = st.HandleFriendRequest(ctx, alice.ID, bob.ID, true)
	require.NoError(t, err)

	conv, err := st.CreateConversation(ctx, nil, []int64{alice.ID})
	require.NoError(t, err)

	convID, added, err := st.InviteMembers(ctx, &conv.ID, alice.ID, []int64{bob.ID})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, convID)
	assert.Equal(t, []int64{bob.ID}, added)

	_, added, err = st.InviteMembers(ctx, &conv.ID, alice.ID, []int64{bob.ID})
	require.NoError(t, err)
	assert.Empty(t, added)

	members, err := st.ListMembers(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestInviteMembersCreatesConversationWhenNil(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")
	_, err := st.HandleFriendRequest(ctx, bob.ID, alice.ID, true)
	require.NoError(t, err)
	_, err = st.HandleFriendRequest(ctx, alice.ID, bob.ID, true)
	require.NoError(t, err)

	convID, added, err := st.InviteMembers(ctx, nil, alice.ID, []int64{bob.ID})
	require.NoError(t, err)
	require.NotZero(t, convID)
	assert.Equal(t, []int64{bob.ID}, added)

	members, err := st.ListMembers(ctx, convID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

// LeaveConversation deletes the conversation once its last member
// leaves, and a second Leave for the same (now-gone) pair reports
// not_found rather than silently succeeding (idempotence boundary,
// spec.md §8).
func TestLeaveConversationDeletesOnLastMemberThenNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	conv, err := st.CreateConversation(ctx, nil, []int64{alice.ID})
	require.NoError(t, err)

	deleted, err := st.LeaveConversation(ctx, alice.ID, conv.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = st.GetConversation(ctx, conv.ID)
	assert.Error(t, err)

	_, err = st.LeaveConversation(ctx, alice.ID, conv.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestLeaveConversationKeepsOtherMembers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")
	conv, err := st.CreateConversation(ctx, nil, []int64{alice.ID, bob.ID})
	require.NoError(t, err)

	deleted, err := st.LeaveConversation(ctx, alice.ID, conv.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	members, err := st.ListMembers(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, bob.ID, members[0].UserID)
}
