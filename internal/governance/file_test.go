package governance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"initiative-mcp/pkg/models"
)

func TestFileGovernanceUnconfigured(t *testing.T) {
	g := NewFileGovernance(t.TempDir())
	ctx := context.Background()

	ok, err := g.IsConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	groups, err := g.GroupsAndApprovers(ctx)
	require.NoError(t, err)
	assert.Nil(t, groups)
}

func TestFileGovernanceConfigure(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	g := NewFileGovernance(t.TempDir(), WithClock(func() time.Time { return at }))
	ctx := context.Background()

	rec, err := g.Configure(ctx, map[models.Group][]string{
		"ba":     {" ana@example.com ", "bo@example.com", "ana@example.com"},
		"design": {"dee@example.com"},
		" dev ":  {"zed@example.com", "ed@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, at, rec.ConfiguredAt)
	assert.Equal(t, []models.Group{"ba", "design", "dev"}, rec.GroupNames())

	ok, err := g.IsConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	groups, err := g.GroupsAndApprovers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com", "bo@example.com"}, groups["ba"])
	assert.Equal(t, []string{"ed@example.com", "zed@example.com"}, groups["dev"])
}

func TestFileGovernanceConfigureRejectsEmpty(t *testing.T) {
	g := NewFileGovernance(t.TempDir())
	ctx := context.Background()

	_, err := g.Configure(ctx, nil)
	assert.ErrorIs(t, err, ErrNoGroups)

	_, err = g.Configure(ctx, map[models.Group][]string{"ba": {" "}})
	assert.ErrorIs(t, err, ErrEmptyGroup)

	_, statErr := os.Stat(g.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileGovernanceMalformed(t *testing.T) {
	g := NewFileGovernance(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(g.Path()), 0o755))
	require.NoError(t, os.WriteFile(g.Path(), []byte("approvers: nope\n"), 0o644))

	_, err := g.IsConfigured(context.Background())
	assert.Error(t, err)
}

func TestMissing(t *testing.T) {
	configured := map[models.Group][]string{"ba": {"a"}, "dev": {"d"}}
	assert.Equal(t, []models.Group{"design"}, Missing([]models.Group{"ba", "design", "dev"}, configured))
	assert.Empty(t, Missing([]models.Group{"dev"}, configured))
}
