package services

import (
	"context"

	"initiative-mcp/internal/repository"
	"initiative-mcp/pkg/models"
)

// Governance exposes the approver groups configured for a project.
type Governance interface {
	// IsConfigured reports whether governance has been set up.
	IsConfigured(ctx context.Context) (bool, error)
	// GroupsAndApprovers returns the approver identities per group.
	GroupsAndApprovers(ctx context.Context) (map[models.Group][]string, error)
}

// ArtifactMaterializer creates the placeholder document of a stage.
type ArtifactMaterializer interface {
	Create(ctx context.Context, key string, stage models.Stage) (models.ArtifactRef, error)
}

// Session carries the per-request collaborators of one project. It replaces
// any notion of a process wide "current project".
type Session struct {
	Project    string
	Store      repository.InitiativeStore
	Governance Governance
	Artifacts  ArtifactMaterializer
	// Actor is recorded on history entries; empty for anonymous callers.
	Actor string
}
