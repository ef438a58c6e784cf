// Package governance stores which approver identities belong to which
// stakeholder group for a project.
package governance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"initiative-mcp/internal/repository"
	"initiative-mcp/pkg/models"
)

// FileName is the governance document inside the project state directory.
const FileName = "governance.yaml"

var (
	// ErrNoGroups is returned when configuring an empty governance record.
	ErrNoGroups = errors.New("governance: at least one group is required")
	// ErrEmptyGroup is returned for a group without approvers.
	ErrEmptyGroup = errors.New("governance: group has no approvers")
)

// FileGovernance reads and writes <root>/.initiatives/governance.yaml.
type FileGovernance struct {
	path string
	now  func() time.Time
}

// Option customizes a FileGovernance.
type Option func(*FileGovernance)

// WithClock overrides the clock used for ConfiguredAt.
func WithClock(clock func() time.Time) Option {
	return func(g *FileGovernance) {
		g.now = clock
	}
}

// NewFileGovernance creates the governance record of the project at root.
func NewFileGovernance(root string, opts ...Option) *FileGovernance {
	g := &FileGovernance{
		path: filepath.Join(root, repository.StateDir, FileName),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Path is the location of the governance document.
func (g *FileGovernance) Path() string {
	return g.path
}

// IsConfigured reports whether a governance record with at least one group
// exists.
func (g *FileGovernance) IsConfigured(ctx context.Context) (bool, error) {
	rec, err := g.Record(ctx)
	if err != nil {
		return false, err
	}
	return rec != nil && len(rec.Groups) > 0, nil
}

// GroupsAndApprovers returns the configured groups, or nil when governance
// has not been set up.
func (g *FileGovernance) GroupsAndApprovers(ctx context.Context) (map[models.Group][]string, error) {
	rec, err := g.Record(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Groups, nil
}

// Record loads the full governance record, or nil when absent.
func (g *FileGovernance) Record(_ context.Context) (*models.GovernanceRecord, error) {
	data, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("governance: read %s: %w", g.path, err)
	}
	var rec models.GovernanceRecord
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("governance: parse %s: %w", g.path, err)
	}
	return &rec, nil
}

// Configure replaces the governance record. Approver identities are trimmed,
// deduplicated and sorted; groups without approvers are rejected.
func (g *FileGovernance) Configure(_ context.Context, groups map[models.Group][]string) (*models.GovernanceRecord, error) {
	normalized, err := Normalize(groups)
	if err != nil {
		return nil, err
	}
	rec := &models.GovernanceRecord{Groups: normalized, ConfiguredAt: g.now().UTC()}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("governance: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return nil, fmt.Errorf("governance: ensure state dir: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0o644); err != nil {
		return nil, fmt.Errorf("governance: write %s: %w", g.path, err)
	}
	return rec, nil
}

// Normalize validates and canonicalizes a group to approvers mapping.
func Normalize(groups map[models.Group][]string) (map[models.Group][]string, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	out := make(map[models.Group][]string, len(groups))
	for group, approvers := range groups {
		name := models.Group(strings.TrimSpace(string(group)))
		if name == "" {
			return nil, fmt.Errorf("%w: empty group name", ErrEmptyGroup)
		}
		seen := make(map[string]struct{}, len(approvers))
		var list []string
		for _, a := range approvers {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			list = append(list, a)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyGroup, name)
		}
		sort.Strings(list)
		out[name] = list
	}
	return out, nil
}

// Missing returns the required groups that have no entry in configured.
func Missing(required []models.Group, configured map[models.Group][]string) []models.Group {
	var missing []models.Group
	for _, g := range required {
		if len(configured[g]) == 0 {
			missing = append(missing, g)
		}
	}
	return missing
}
