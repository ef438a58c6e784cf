package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"initiative-mcp/internal/config"
	"initiative-mcp/internal/logging"
)

func TestOpenConfiguredFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = config.DriverFile
	cfg.Project.Root = t.TempDir()

	opener, closeFn, err := OpenConfigured(context.Background(), cfg, knownStages("prd"), logging.Discard())
	require.NoError(t, err)
	defer closeFn()

	store, err := opener.Open(context.Background(), cfg.Project.Root)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	migrated, err := Migrate(cfg)
	require.NoError(t, err)
	assert.False(t, migrated)
}

func TestOpenConfiguredSQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.SQLitePath = "state.db"
	cfg.Project.Root = t.TempDir()
	assert.Equal(t, filepath.Join(cfg.Project.Root, "state.db"), SQLitePath(cfg))

	opener, closeFn, err := OpenConfigured(context.Background(), cfg, knownStages("prd", "ux"), logging.Discard())
	require.NoError(t, err)
	defer closeFn()

	store, err := opener.Open(context.Background(), cfg.Project.Root)
	require.NoError(t, err)
	runStoreContract(t, store)

	migrated, err := Migrate(cfg)
	require.NoError(t, err)
	assert.True(t, migrated)
}
