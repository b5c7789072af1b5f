package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notes/internal/adapter/repotest"
	"notes/internal/domain"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repotest.Store { return openTemp(t) })
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "notes.db")
	db, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	u, err := db.Create(ctx, "alice", "hash")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	got, err := db.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestForeignKeyEnforced(t *testing.T) {
	db := openTemp(t)
	_, err := db.CreateNote(context.Background(), domain.NewNote{Title: "orphan", UserID: 99})
	require.Error(t, err)
}

func TestTimestampPrecision(t *testing.T) {
	db := openTemp(t)
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 123456789, time.UTC)
	db.now = func() time.Time { return fixed }

	ctx := context.Background()
	u, err := db.Create(ctx, "alice", "hash")
	require.NoError(t, err)
	n, err := db.CreateNote(ctx, domain.NewNote{Title: "t", UserID: u.ID})
	require.NoError(t, err)
	assert.True(t, fixed.Equal(n.CreatedAt), "got %v", n.CreatedAt)
}

func TestDeletingUserCascades(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	u, err := db.Create(ctx, "alice", "hash")
	require.NoError(t, err)
	n, err := db.CreateNote(ctx, domain.NewNote{Title: "t", UserID: u.ID})
	require.NoError(t, err)

	_, err = db.sql.ExecContext(ctx, "DELETE FROM users WHERE id = ?", u.ID)
	require.NoError(t, err)
	_, err = db.GetNoteByID(ctx, n.ID)
	require.ErrorIs(t, err, domain.ErrNoteNotFound)
}
