package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"initiative-mcp/internal/migrations"
	"initiative-mcp/pkg/models"
)

func newSQLiteDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "initiatives.db")
	require.NoError(t, migrations.Up(migrations.SQLite, migrations.SQLiteURL(path)))
	return path
}

func TestSQLiteStoreContract(t *testing.T) {
	db, err := OpenSQLite(newSQLiteDB(t))
	require.NoError(t, err)
	defer db.Close()

	runStoreContract(t, NewSQLiteStore(db, "/srv/payments", nil))
}

func TestSQLiteStoreScopesByProject(t *testing.T) {
	db, err := OpenSQLite(newSQLiteDB(t))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	opener := NewSQLiteOpener(db, nil)
	a, err := opener.Open(ctx, "project-a")
	require.NoError(t, err)
	b, err := opener.Open(ctx, "project-b")
	require.NoError(t, err)

	require.NoError(t, a.Save(ctx, &models.Initiative{Key: "K", Title: "A", CurrentStage: "prd"}))
	exists, err := b.Exists(ctx, "K")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStoreValidatesStage(t *testing.T) {
	db, err := OpenSQLite(newSQLiteDB(t))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	raw := NewSQLiteStore(db, "p", nil)
	require.NoError(t, raw.Save(ctx, &models.Initiative{Key: "K", Title: "t", CurrentStage: "qa"}))

	_, err = NewSQLiteStore(db, "p", knownStages("prd")).Load(ctx, "K")
	assert.ErrorIs(t, err, ErrCorruptRecord)
	assert.ErrorIs(t, err, errStage)
}
