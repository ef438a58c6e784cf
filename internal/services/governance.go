package services

import (
	"context"
	"errors"
	"fmt"

	"initiative-mcp/internal/governance"
	"initiative-mcp/pkg/models"
)

// GovernanceConfigurer is implemented by governance backends that can be
// written to.
type GovernanceConfigurer interface {
	Configure(ctx context.Context, groups map[models.Group][]string) (*models.GovernanceRecord, error)
}

// GovernanceResult is returned by LifecycleManager.ConfigureGovernance.
type GovernanceResult struct {
	Outcome Outcome                   `json:"outcome"`
	Message string                    `json:"message"`
	Groups  map[models.Group][]string `json:"groups,omitempty"`
	// MissingGroups lists workflow groups left without approvers.
	MissingGroups []models.Group `json:"missing_groups,omitempty"`
}

// ConfigureGovernance records the approvers of each group for the session's
// project, satisfying the gate Create checks.
func (m *LifecycleManager) ConfigureGovernance(ctx context.Context, sess *Session, groups map[models.Group][]string) (GovernanceResult, error) {
	w, ok := sess.Governance.(GovernanceConfigurer)
	if !ok {
		return GovernanceResult{}, errors.New("governance backend is read-only")
	}
	rec, err := w.Configure(ctx, groups)
	if errors.Is(err, governance.ErrNoGroups) || errors.Is(err, governance.ErrEmptyGroup) {
		return GovernanceResult{Outcome: OutcomeInvalidInput, Message: err.Error()}, nil
	}
	if err != nil {
		return GovernanceResult{}, fmt.Errorf("configure governance: %w", err)
	}
	m.logger.Info("governance configured", "project", sess.Project, "groups", len(rec.Groups))
	return GovernanceResult{
		Outcome:       OutcomeOK,
		Message:       fmt.Sprintf("governance configured with %d groups", len(rec.Groups)),
		Groups:        rec.Groups,
		MissingGroups: governance.Missing(m.def.Groups(), rec.Groups),
	}, nil
}
