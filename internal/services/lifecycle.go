package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"initiative-mcp/internal/governance"
	"initiative-mcp/internal/logging"
	"initiative-mcp/internal/repository"
	"initiative-mcp/internal/workflow"
	"initiative-mcp/pkg/models"
)

// LifecycleManager creates initiatives, reports their status and advances
// them through the workflow.
type LifecycleManager struct {
	def     *workflow.Definition
	now     func() time.Time
	logger  *logging.Logger
	metrics *Metrics
	locks   *keyedMutex
}

// Option customizes a LifecycleManager.
type Option func(*LifecycleManager)

// WithClock overrides the clock used for history timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *LifecycleManager) {
		m.now = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *LifecycleManager) {
		m.logger = logger
	}
}

// WithMetrics sets the operation counters.
func WithMetrics(metrics *Metrics) Option {
	return func(m *LifecycleManager) {
		m.metrics = metrics
	}
}

// NewLifecycleManager creates a LifecycleManager for def.
func NewLifecycleManager(def *workflow.Definition, opts ...Option) *LifecycleManager {
	m := &LifecycleManager{
		def:    def,
		now:    time.Now,
		logger: logging.Discard(),
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Definition returns the workflow the manager runs.
func (m *LifecycleManager) Definition() *workflow.Definition {
	return m.def
}

// StageInfo describes one workflow stage.
type StageInfo struct {
	Position       int            `json:"position"`
	Stage          models.Stage   `json:"stage"`
	RequiredGroups []models.Group `json:"required_groups"`
}

// Stages lists the workflow in order with the groups each stage requires.
func (m *LifecycleManager) Stages() []StageInfo {
	stages := m.def.StageSequence()
	out := make([]StageInfo, len(stages))
	for i, st := range stages {
		groups, _ := m.def.RequiredGroupsFor(st)
		out[i] = StageInfo{Position: i + 1, Stage: st, RequiredGroups: groups}
	}
	return out
}

// Create starts a new initiative on the first stage.
func (m *LifecycleManager) Create(ctx context.Context, sess *Session, key, title string) (CreateResult, error) {
	key, title = strings.TrimSpace(key), strings.TrimSpace(title)
	if key == "" || title == "" {
		return CreateResult{Outcome: OutcomeInvalidInput, Message: "key and title are required"}, nil
	}
	if err := models.ValidateKey(key); err != nil {
		return CreateResult{Outcome: OutcomeInvalidInput, Message: err.Error()}, nil
	}

	configured, err := sess.Governance.IsConfigured(ctx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("check governance: %w", err)
	}
	if !configured {
		m.metrics.record(ctx, "create", OutcomeGovernanceNotConfigured, "")
		return CreateResult{
			Outcome: OutcomeGovernanceNotConfigured,
			Message: "governance is not configured for this project; run configure_governance first",
		}, nil
	}

	unlock := m.locks.Lock(lockKey(sess.Project, key))
	defer unlock()

	first := m.def.First()
	var result CreateResult
	err = repository.RunInTx(ctx, sess.Store, key, func(store repository.InitiativeStore) error {
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			result = CreateResult{
				Outcome: OutcomeAlreadyExists,
				Message: fmt.Sprintf("initiative %s already exists", key),
			}
			return nil
		}

		now := m.now().UTC()
		in := &models.Initiative{
			Key:          key,
			Title:        title,
			CurrentStage: first,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.Save(ctx, in); err != nil {
			return err
		}
		rec := models.HistoryRecord{
			ID:        uuid.NewString(),
			Timestamp: now,
			Stage:     first,
			Action:    models.ActionCreated,
			Actor:     sess.Actor,
			Note:      fmt.Sprintf("initiative %q created", title),
		}
		if err := store.AppendHistory(ctx, key, rec); err != nil {
			return err
		}
		in.History = []models.HistoryRecord{rec}

		groups, _ := m.def.RequiredGroupsFor(first)
		result = CreateResult{
			Outcome:        OutcomeCreated,
			Message:        fmt.Sprintf("initiative %s created at stage %s", key, first),
			Initiative:     in,
			Position:       1,
			Total:          m.def.Len(),
			RequiredGroups: groups,
		}
		return nil
	})
	if errors.Is(err, models.ErrInvalidKey) {
		return CreateResult{Outcome: OutcomeInvalidInput, Message: err.Error()}, nil
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("create %s: %w", key, err)
	}

	if result.Outcome == OutcomeCreated {
		if approvers, err := sess.Governance.GroupsAndApprovers(ctx); err == nil {
			result.MissingGroups = governance.Missing(m.def.Groups(), approvers)
		}
		m.logger.Info("initiative created", "project", sess.Project, "key", key, "stage", first)
	}
	m.metrics.record(ctx, "create", result.Outcome, first)
	return result, nil
}

// Status reports project governance when key is empty, and the state of the
// initiative otherwise. A missing initiative is an OutcomeNotFound report.
func (m *LifecycleManager) Status(ctx context.Context, sess *Session, key string) (StatusReport, error) {
	key = strings.TrimSpace(key)
	report := StatusReport{Project: sess.Project}

	configured, err := sess.Governance.IsConfigured(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("check governance: %w", err)
	}
	report.GovernanceConfigured = configured

	if key == "" {
		report.Outcome = OutcomeOK
		if !configured {
			report.Message = "governance is not configured"
			return report, nil
		}
		groups, err := sess.Governance.GroupsAndApprovers(ctx)
		if err != nil {
			return StatusReport{}, fmt.Errorf("read governance: %w", err)
		}
		report.Groups = groups
		report.Message = fmt.Sprintf("governance configured with %d groups", len(groups))
		return report, nil
	}

	report.Key = key
	in, err := sess.Store.Load(ctx, key)
	switch {
	case errors.Is(err, workflow.ErrUnknownStage):
		report.Outcome = OutcomeUnknownStage
		report.Message = err.Error()
		return report, nil
	case errors.Is(err, models.ErrInvalidKey):
		report.Outcome = OutcomeInvalidInput
		report.Message = err.Error()
		return report, nil
	case err != nil:
		return StatusReport{}, fmt.Errorf("load %s: %w", key, err)
	case in == nil:
		report.Outcome = OutcomeNotFound
		report.Message = fmt.Sprintf("initiative %s not found", key)
		return report, nil
	}

	pos, err := m.def.Position(in.CurrentStage)
	if err != nil {
		report.Outcome = OutcomeUnknownStage
		report.Message = err.Error()
		return report, nil
	}
	report.Outcome = OutcomeOK
	report.Title = in.Title
	report.Stage = in.CurrentStage
	report.Position = pos
	report.Total = m.def.Len()
	report.Complete = in.IsComplete()
	report.History = in.History
	if report.Complete {
		report.Message = fmt.Sprintf("initiative %s is complete", key)
	} else {
		report.RequiredGroups, _ = m.def.RequiredGroupsFor(in.CurrentStage)
		report.Message = fmt.Sprintf("initiative %s is at stage %s (%d/%d)", key, in.CurrentStage, pos, report.Total)
	}
	return report, nil
}

// Advance materializes the artifact of the current stage, records its
// required approvals and moves the initiative to the next stage. Processing
// the last stage moves it to models.StageComplete; a further call reports
// completion without mutating anything.
func (m *LifecycleManager) Advance(ctx context.Context, sess *Session, key string) (AdvanceResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return AdvanceResult{Outcome: OutcomeInvalidInput, Message: "key is required"}, nil
	}
	if err := models.ValidateKey(key); err != nil {
		m.metrics.record(ctx, "advance", OutcomeInvalidInput, "")
		return AdvanceResult{Outcome: OutcomeInvalidInput, Key: key, Message: err.Error()}, nil
	}

	unlock := m.locks.Lock(lockKey(sess.Project, key))
	defer unlock()

	result := AdvanceResult{Key: key}
	err := repository.RunInTx(ctx, sess.Store, key, func(store repository.InitiativeStore) error {
		in, err := store.Load(ctx, key)
		if err != nil {
			return err
		}
		if in == nil {
			result.Outcome = OutcomeNotFound
			result.Message = fmt.Sprintf("initiative %s not found", key)
			return nil
		}

		stage := in.CurrentStage
		if err := m.def.Validate(stage); err != nil {
			result.Outcome = OutcomeUnknownStage
			result.Message = err.Error()
			return nil
		}
		if stage == models.StageComplete {
			result.Outcome = OutcomeComplete
			result.Complete = true
			result.Message = fmt.Sprintf("initiative %s has completed every stage", key)
			return nil
		}

		groups, err := m.def.RequiredGroupsFor(stage)
		if err != nil {
			return err
		}
		next, err := m.def.NextStage(stage)
		if err != nil {
			return err
		}

		ref, err := sess.Artifacts.Create(ctx, key, stage)
		if err != nil {
			return fmt.Errorf("materialize %s artifact: %w", stage, err)
		}

		now := m.now().UTC()
		rec := models.HistoryRecord{
			ID:        uuid.NewString(),
			Timestamp: now,
			Stage:     stage,
			Action:    models.ActionAdvanced,
			Groups:    groups,
			Actor:     sess.Actor,
			Note:      fmt.Sprintf("moved to %s", next),
		}
		if err := store.AppendHistory(ctx, key, rec); err != nil {
			return err
		}
		in.CurrentStage = next
		in.UpdatedAt = now
		if err := store.Save(ctx, in); err != nil {
			return err
		}

		result.Outcome = OutcomeAdvanced
		result.Artifact = &ref
		result.ProcessedStage = stage
		result.RequiredGroups = groups
		result.NextStage = next
		result.NextSteps = nextSteps(ref, stage, groups)
		result.Message = fmt.Sprintf("created %s artifact for %s; now at %s", stage, key, next)
		return nil
	})
	switch {
	case errors.Is(err, workflow.ErrUnknownStage):
		result.Outcome = OutcomeUnknownStage
		result.Message = err.Error()
	case errors.Is(err, models.ErrInvalidKey):
		result.Outcome = OutcomeInvalidInput
		result.Message = err.Error()
	case err != nil:
		return AdvanceResult{}, fmt.Errorf("advance %s: %w", key, err)
	}

	if result.Outcome == OutcomeAdvanced {
		m.logger.Info("initiative advanced",
			"project", sess.Project, "key", key, "stage", result.ProcessedStage, "next", result.NextStage)
	} else if result.Outcome == OutcomeUnknownStage {
		m.logger.Error("initiative has unknown stage", "project", sess.Project, "key", key, "error", result.Message)
	}
	m.metrics.record(ctx, "advance", result.Outcome, result.ProcessedStage)
	return result, nil
}

func nextSteps(ref models.ArtifactRef, stage models.Stage, groups []models.Group) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}
	return []string{
		fmt.Sprintf("Fill in %s", ref.Path),
		fmt.Sprintf("Open a pull request for the %s artifact", stage),
		fmt.Sprintf("Request approval from: %s", strings.Join(names, ", ")),
	}
}

func lockKey(project, key string) string {
	return project + "\x00" + key
}
