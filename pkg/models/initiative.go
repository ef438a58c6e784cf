// Package models defines the domain models shared by the initiative workflow
// services, stores and transports.
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidKey is returned for initiative keys that cannot be stored.
var ErrInvalidKey = errors.New("invalid initiative key")

// ValidateKey rejects keys that cannot name a file or directory inside a
// project: empty, dot-prefixed, or containing a path separator.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Stage identifies one step of the artifact workflow (e.g. "prd", "ux").
type Stage string

// Group identifies a stakeholder group whose approval a stage requires.
type Group string

// StageComplete is the sentinel stage an initiative reaches once the final
// workflow stage has been advanced past.
const StageComplete Stage = "complete"

// History actions recorded on an initiative.
const (
	ActionCreated  = "created"
	ActionAdvanced = "advanced"
)

// Initiative is a single tracked unit of work moving through the workflow.
type Initiative struct {
	Key          string          `json:"key" yaml:"key"`
	Title        string          `json:"title" yaml:"title"`
	CurrentStage Stage           `json:"current_stage" yaml:"current_stage"`
	History      []HistoryRecord `json:"history" yaml:"history"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" yaml:"updated_at"`
}

// IsComplete reports whether the initiative has left the final stage.
func (i *Initiative) IsComplete() bool {
	return i.CurrentStage == StageComplete
}

// HistoryRecord is one append-only transition entry.
type HistoryRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Stage     Stage     `json:"stage" yaml:"stage"`
	Action    string    `json:"action" yaml:"action"`
	Groups    []Group   `json:"groups,omitempty" yaml:"groups,omitempty"`
	Actor     string    `json:"actor,omitempty" yaml:"actor,omitempty"`
	Note      string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// GovernanceRecord lists the approver identities of each stakeholder group.
type GovernanceRecord struct {
	Groups       map[Group][]string `json:"groups" yaml:"groups"`
	ConfiguredAt time.Time          `json:"configured_at" yaml:"configured_at"`
}

// GroupNames returns the group identifiers of the record in sorted order.
func (g *GovernanceRecord) GroupNames() []Group {
	if g == nil {
		return nil
	}
	names := make([]Group, 0, len(g.Groups))
	for name := range g.Groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ArtifactRef points at a materialized stage artifact. Callers treat it as
// opaque and only pass it through.
type ArtifactRef struct {
	ID    string `json:"id"`
	Stage Stage  `json:"stage"`
	Path  string `json:"path"`
}
