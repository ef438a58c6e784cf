package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"initiative-mcp/internal/artifact"
	"initiative-mcp/internal/governance"
	"initiative-mcp/internal/repository"
)

// ErrProjectOutsideRoot rejects a project that resolves outside the
// factory's root directory.
var ErrProjectOutsideRoot = errors.New("project is outside the project root")

// SessionFactory builds the Session of a project directory: initiatives
// through the configured store opener, governance and artifacts on disk.
type SessionFactory struct {
	opener         repository.Opener
	defaultProject string
	unrestricted   bool
}

// SessionOption customizes a SessionFactory.
type SessionOption func(*SessionFactory)

// AllowProjectsOutsideRoot accepts any project directory. Only local
// transports where the caller already owns the filesystem should use it.
func AllowProjectsOutsideRoot() SessionOption {
	return func(f *SessionFactory) {
		f.unrestricted = true
	}
}

// NewSessionFactory creates a factory. defaultProject is used when a request
// names no project, and bounds every project a request may name.
func NewSessionFactory(opener repository.Opener, defaultProject string, opts ...SessionOption) *SessionFactory {
	f := &SessionFactory{opener: opener, defaultProject: filepath.Clean(defaultProject)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open resolves project (relative paths against the default project) and
// returns its Session.
func (f *SessionFactory) Open(ctx context.Context, project, actor string) (*Session, error) {
	root, err := f.resolve(project)
	if err != nil {
		return nil, err
	}
	store, err := f.opener.Open(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("open store for %s: %w", root, err)
	}
	return &Session{
		Project:    root,
		Store:      store,
		Governance: governance.NewFileGovernance(root),
		Artifacts:  artifact.NewMaterializer(root),
		Actor:      actor,
	}, nil
}

func (f *SessionFactory) resolve(project string) (string, error) {
	if project == "" {
		return f.defaultProject, nil
	}
	root := project
	if !filepath.IsAbs(project) {
		root = filepath.Join(f.defaultProject, project)
	}
	root = filepath.Clean(root)
	if f.unrestricted {
		return root, nil
	}
	rel, err := filepath.Rel(f.defaultProject, root)
	if err != nil || !filepath.IsLocal(rel) && rel != "." {
		return "", fmt.Errorf("%w: %q", ErrProjectOutsideRoot, project)
	}
	return root, nil
}
