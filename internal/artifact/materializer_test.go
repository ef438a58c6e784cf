package artifact

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

func TestMaterializerCreate(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMaterializer(root, WithClock(func() time.Time { return at }))

	ref, err := m.Create(context.Background(), "INIT-1", "prd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "initiatives", "INIT-1", "prd.md"), ref.Path)
	assert.NotEmpty(t, ref.ID)

	data, err := os.ReadFile(ref.Path)
	require.NoError(t, err)
	meta, body, err := ParseFrontMatter(data)
	require.NoError(t, err)
	assert.Equal(t, ref.ID, meta.ID)
	assert.Equal(t, "INIT-1", meta.Initiative)
	assert.True(t, at.Equal(meta.Created))
	assert.Contains(t, string(body), "# INIT-1: Product Requirements Document")
}

func TestMaterializerKeepsExisting(t *testing.T) {
	root := t.TempDir()
	m := NewMaterializer(root)
	ctx := context.Background()

	first, err := m.Create(ctx, "INIT-1", "ux")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first.Path, append(mustRead(t, first.Path), []byte("notes\n")...), 0o644))

	second, err := m.Create(ctx, "INIT-1", "ux")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(mustRead(t, first.Path)), "notes")
}

func TestMaterializerHandWrittenDocument(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, Dir, "K", "architecture.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("# mine\n"), 0o644))

	ref, err := NewMaterializer(root).Create(context.Background(), "K", "architecture")
	require.NoError(t, err)
	assert.Empty(t, ref.ID)
	assert.Equal(t, path, ref.Path)
}

func TestParseFrontMatterErrors(t *testing.T) {
	_, _, err := ParseFrontMatter([]byte("# no header"))
	assert.ErrorIs(t, err, ErrMissingFrontMatter)

	_, _, err = ParseFrontMatter([]byte("---\nartifact:\n  id: x\n"))
	assert.ErrorIs(t, err, ErrMalformedFrontMatter)

	_, _, err = ParseFrontMatter([]byte("---\nartifact: [\n---\nbody"))
	assert.ErrorIs(t, err, ErrMalformedFrontMatter)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestMaterializerRejectsEscapingKeys(t *testing.T) {
	m := NewMaterializer(t.TempDir())
	for _, key := range []string{"../x", "a/b", ".."} {
		_, err := m.Create(context.Background(), key, "prd")
		assert.Error(t, err, key)
	}
}

func TestMaterializerInvalidKeyWrapsSentinel(t *testing.T) {
	_, err := NewMaterializer(t.TempDir()).Create(context.Background(), "team/INIT-1", "prd")
	assert.ErrorIs(t, err, models.ErrInvalidKey)
}
