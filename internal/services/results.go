package services

import (
	"errors"

	"initiative-mcp/internal/workflow"
	"initiative-mcp/pkg/models"
)

var (
	// ErrAlreadyExists rejects creating an initiative whose key is in use.
	ErrAlreadyExists = errors.New("initiative already exists")
	// ErrNotFound reports an operation on a nonexistent initiative.
	ErrNotFound = errors.New("initiative not found")
	// ErrGovernanceNotConfigured rejects creation before governance is set up.
	ErrGovernanceNotConfigured = errors.New("governance not configured")
	// ErrInvalidInput rejects empty keys or titles.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownStage reports a persisted stage the workflow does not know.
	ErrUnknownStage = workflow.ErrUnknownStage
)

// Outcome tags every result. Callers switch on it instead of inspecting
// messages.
type Outcome string

const (
	OutcomeCreated                 Outcome = "created"
	OutcomeAlreadyExists           Outcome = "already_exists"
	OutcomeGovernanceNotConfigured Outcome = "governance_not_configured"
	OutcomeInvalidInput            Outcome = "invalid_input"
	OutcomeOK                      Outcome = "ok"
	OutcomeNotFound                Outcome = "not_found"
	OutcomeAdvanced                Outcome = "advanced"
	OutcomeComplete                Outcome = "complete"
	OutcomeUnknownStage            Outcome = "unknown_stage"
)

// Err maps the outcome onto its sentinel error, or nil for success outcomes.
func (o Outcome) Err() error {
	switch o {
	case OutcomeAlreadyExists:
		return ErrAlreadyExists
	case OutcomeGovernanceNotConfigured:
		return ErrGovernanceNotConfigured
	case OutcomeInvalidInput:
		return ErrInvalidInput
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeUnknownStage:
		return ErrUnknownStage
	}
	return nil
}

// Rejected reports whether the outcome is a failed precondition. NotFound is
// a normal reportable outcome and is not a rejection.
func (o Outcome) Rejected() bool {
	switch o {
	case OutcomeAlreadyExists, OutcomeGovernanceNotConfigured, OutcomeInvalidInput, OutcomeUnknownStage:
		return true
	}
	return false
}

// CreateResult is returned by LifecycleManager.Create.
type CreateResult struct {
	Outcome        Outcome            `json:"outcome"`
	Message        string             `json:"message"`
	Initiative     *models.Initiative `json:"initiative,omitempty"`
	Position       int                `json:"position,omitempty"`
	Total          int                `json:"total,omitempty"`
	RequiredGroups []models.Group     `json:"required_groups,omitempty"`
	// MissingGroups lists workflow groups governance has no approvers for.
	MissingGroups []models.Group `json:"missing_groups,omitempty"`
}

// StatusReport is returned by LifecycleManager.Status.
type StatusReport struct {
	Outcome              Outcome                   `json:"outcome"`
	Message              string                    `json:"message"`
	Project              string                    `json:"project"`
	GovernanceConfigured bool                      `json:"governance_configured"`
	Groups               map[models.Group][]string `json:"groups,omitempty"`

	Key            string                 `json:"key,omitempty"`
	Title          string                 `json:"title,omitempty"`
	Stage          models.Stage           `json:"stage,omitempty"`
	Position       int                    `json:"position,omitempty"`
	Total          int                    `json:"total,omitempty"`
	Complete       bool                   `json:"complete,omitempty"`
	RequiredGroups []models.Group         `json:"required_groups,omitempty"`
	History        []models.HistoryRecord `json:"history,omitempty"`
}

// AdvanceResult is returned by LifecycleManager.Advance.
type AdvanceResult struct {
	Outcome        Outcome             `json:"outcome"`
	Message        string              `json:"message"`
	Key            string              `json:"key"`
	Artifact       *models.ArtifactRef `json:"artifact,omitempty"`
	ProcessedStage models.Stage        `json:"processed_stage,omitempty"`
	RequiredGroups []models.Group      `json:"required_groups,omitempty"`
	NextStage      models.Stage        `json:"next_stage,omitempty"`
	Complete       bool                `json:"complete"`
	NextSteps      []string            `json:"next_steps,omitempty"`
}
