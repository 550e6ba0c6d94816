package local

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedFirstVersion writes a database as the first release left it: notes
// without owners and no migration bookkeeping.
func seedFirstVersion(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		date INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO notes (title, content, date) VALUES ('first', 'kept', 1700000000000), ('second', '', 1700000001000)`)
	require.NoError(t, err)
}

func TestMigrationsAssignLegacyNotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diary.db")
	seedFirstVersion(t, path)
	ctx := context.Background()

	store, err := Open(ctx, path, WithLegacyOwner("u1"))
	require.NoError(t, err)
	defer store.Close()

	n, err := store.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.GetNote(ctx, 1, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kept", got.Content)
	assert.False(t, got.IsTestNote)

	var applied int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, len(migrations), applied)
}

func TestMigrationsWithoutOwnerKeepLegacyMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diary.db")
	seedFirstVersion(t, path)
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.CountNotes(ctx, legacyOwner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diary.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	again, err := Open(ctx, path)
	require.NoError(t, err)
	defer again.Close()

	var applied int
	require.NoError(t, again.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, len(migrations), applied)

	// re-running a step against an already migrated schema is harmless
	tx, err := again.db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	for _, m := range migrations {
		assert.NoError(t, m.apply(ctx, tx, ""), "migration %d", m.version)
	}
}
