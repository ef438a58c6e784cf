package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"initiative-mcp/internal/repository"
)

func TestSessionFactoryResolvesProjects(t *testing.T) {
	root := t.TempDir()
	f := NewSessionFactory(repository.NewFileOpener(), root)
	ctx := context.Background()

	sess, err := f.Open(ctx, "", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, root, sess.Project)
	assert.Equal(t, "ana@example.com", sess.Actor)

	sess, err = f.Open(ctx, "team-a/payments", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "team-a", "payments"), sess.Project)

	sess, err = f.Open(ctx, filepath.Join(root, "team-b"), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "team-b"), sess.Project)

	sess, err = f.Open(ctx, "team-a/../team-c", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "team-c"), sess.Project)
}

func TestSessionFactoryRejectsProjectsOutsideRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "projects")
	f := NewSessionFactory(repository.NewFileOpener(), root)

	for _, project := range []string{"..", "../x", "../../../../etc", "a/../../x", "/etc", filepath.Dir(root)} {
		_, err := f.Open(context.Background(), project, "")
		assert.ErrorIs(t, err, ErrProjectOutsideRoot, project)
	}
}

func TestSessionFactoryUnrestricted(t *testing.T) {
	root := filepath.Join(t.TempDir(), "projects")
	f := NewSessionFactory(repository.NewFileOpener(), root, AllowProjectsOutsideRoot())

	sess, err := f.Open(context.Background(), "../other", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(root), "other"), sess.Project)
}
