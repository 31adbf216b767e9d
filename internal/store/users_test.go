package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/apperr"
)

func TestGetUserNotFoundWraps(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetUser(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.As(err).Kind)
}

func TestGetUserByUsernameNotFoundWraps(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetUserByUsername(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.As(err).Kind)
}

func TestUsernameTaken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	createTestUser(t, st, "alice")

	taken, err := st.UsernameTaken(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = st.UsernameTaken(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestBulkUsers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")
	createTestUser(t, st, "carol")

	users, err := st.BulkUsers(ctx, []int64{alice.ID, bob.ID})
	require.NoError(t, err)
	require.Len(t, users, 2)

	var names []string
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)
}

func TestBulkUsersEmpty(t *testing.T) {
	st := newTestStore(t)
	users, err := st.BulkUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

// Register+login+implicit-login returns the same user record
// (idempotence, spec.md §8): GetUserByUsername and GetUser must agree
// on the row a fresh registration created.
func TestRegisterLoginImplicitLoginReturnSameUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	created, err := st.CreateUser(ctx, "alice", "alice@example.com", "Alice", "hash")
	require.NoError(t, err)

	byUsername, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUsername.ID)

	byID, err := st.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)
}

func TestSettingsDefaultsThenUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, st, "alice")

	def, err := st.GetSettings(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, def.AIEnabled)
	assert.Equal(t, "system", def.Theme)

	model, err := st.EnsureAIModel(ctx, "gpt-test")
	require.NoError(t, err)

	updated, err := st.UpdateSettings(ctx, u.ID, true, &model.ID, "dark")
	require.NoError(t, err)
	assert.True(t, updated.AIEnabled)
	assert.Equal(t, "dark", updated.Theme)
	require.NotNil(t, updated.AIModelID)
	assert.Equal(t, model.ID, *updated.AIModelID)
}
