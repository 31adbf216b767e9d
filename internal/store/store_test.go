package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"relaychat/internal/models"
)

// newTestStore opens a fresh SQLite file under the test's temp
// directory, mirroring the teacher's per-test *sql.DB setup but
// against a real schema instead of a mocked repository, since this
// package has no interface boundary to mock against.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "relaychat.db")
	st, err := Connect("sqlite://" + dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createTestUser(t *testing.T, st *Store, username string) models.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), username, username+"@example.com", username, "hash")
	require.NoError(t, err)
	return u
}
