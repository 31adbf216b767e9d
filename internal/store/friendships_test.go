package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/models"
)

// P6: friendship symmetry - once accepted, AreFriends reports true
// regardless of which side asks.
func TestHandleFriendRequestAcceptIsSymmetric(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")

	req, err := st.HandleFriendRequest(ctx, alice.ID, bob.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.State)

	_, err = st.HandleFriendRequest(ctx, bob.ID, alice.ID, true)
	require.NoError(t, err)

	friendsAB, err := st.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	friendsBA, err := st.AreFriends(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, friendsAB)
	assert.True(t, friendsBA)
}

// A second outgoing request while one is already pending is a
// conflict, not a silent duplicate.
func TestHandleFriendRequestDuplicateOutgoingConflicts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")

	_, err := st.HandleFriendRequest(ctx, alice.ID, bob.ID, true)
	require.NoError(t, err)

	_, err = st.HandleFriendRequest(ctx, alice.ID, bob.ID, true)
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestHandleFriendRequestRejectRemovesRequest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")

	_, err := st.HandleFriendRequest(ctx, alice.ID, bob.ID, true)
	require.NoError(t, err)

	req, err := st.HandleFriendRequest(ctx, bob.ID, alice.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, req.State)

	friends, err := st.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	_, err = st.HandleFriendRequest(ctx, bob.ID, alice.ID, false)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestHandleFriendRequestSelfRequestRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")

	_, err := st.HandleFriendRequest(ctx, alice.ID, alice.ID, true)
	assert.Error(t, err)
}
