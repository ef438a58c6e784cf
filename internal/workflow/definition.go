// Package workflow declares the ordered artifact stages an initiative moves
// through and the stakeholder groups that must approve each of them.
package workflow

import (
	"errors"
	"fmt"
	"sort"

	"initiative-mcp/pkg/models"
)

var (
	// ErrUnknownStage is returned for a stage identifier that is not part of
	// the definition.
	ErrUnknownStage = errors.New("workflow: unknown stage")
	// ErrInvalidDefinition is returned when a definition breaks its invariants.
	ErrInvalidDefinition = errors.New("workflow: invalid definition")
)

// Default stages.
const (
	StagePRD          models.Stage = "prd"
	StageUX           models.Stage = "ux"
	StageArchitecture models.Stage = "architecture"
	StageEpicsStories models.Stage = "epics_stories"
	StageReadiness    models.Stage = "readiness"
)

// Default groups.
const (
	GroupBA     models.Group = "ba"
	GroupDesign models.Group = "design"
	GroupDev    models.Group = "dev"
)

// Definition is an immutable, validated workflow. The zero value is not
// usable; build one with New or Default.
type Definition struct {
	stages   []models.Stage
	index    map[models.Stage]int
	required map[models.Stage][]models.Group
}

// Default returns the standard five stage approval workflow.
func Default() *Definition {
	def, err := New(
		[]models.Stage{StagePRD, StageUX, StageArchitecture, StageEpicsStories, StageReadiness},
		map[models.Stage][]models.Group{
			StagePRD:          {GroupBA, GroupDesign, GroupDev},
			StageUX:           {GroupBA, GroupDesign},
			StageArchitecture: {GroupDev},
			StageEpicsStories: {GroupBA, GroupDev},
			StageReadiness:    {GroupBA, GroupDesign, GroupDev},
		},
	)
	if err != nil {
		panic(err)
	}
	return def
}

// New validates stages and their required groups and returns a Definition.
// Group sets are deduplicated and sorted.
func New(stages []models.Stage, required map[models.Stage][]models.Group) (*Definition, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrInvalidDefinition)
	}
	def := &Definition{
		stages:   make([]models.Stage, 0, len(stages)),
		index:    make(map[models.Stage]int, len(stages)),
		required: make(map[models.Stage][]models.Group, len(stages)),
	}
	for i, stage := range stages {
		if stage == "" || stage == models.StageComplete {
			return nil, fmt.Errorf("%w: stage %d has reserved or empty id %q", ErrInvalidDefinition, i, stage)
		}
		if _, dup := def.index[stage]; dup {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrInvalidDefinition, stage)
		}
		groups := normalizeGroups(required[stage])
		if len(groups) == 0 {
			return nil, fmt.Errorf("%w: stage %q has no required groups", ErrInvalidDefinition, stage)
		}
		def.index[stage] = i
		def.stages = append(def.stages, stage)
		def.required[stage] = groups
	}
	for stage := range required {
		if _, ok := def.index[stage]; !ok {
			return nil, fmt.Errorf("%w: groups declared for %q which is not in the stage sequence", ErrInvalidDefinition, stage)
		}
	}
	return def, nil
}

// StageSequence returns the ordered stages.
func (d *Definition) StageSequence() []models.Stage {
	out := make([]models.Stage, len(d.stages))
	copy(out, d.stages)
	return out
}

// First returns the stage every new initiative starts on.
func (d *Definition) First() models.Stage {
	return d.stages[0]
}

// Last returns the final stage of the sequence.
func (d *Definition) Last() models.Stage {
	return d.stages[len(d.stages)-1]
}

// Len is the number of stages.
func (d *Definition) Len() int {
	return len(d.stages)
}

// Contains reports whether stage is part of the sequence.
func (d *Definition) Contains(stage models.Stage) bool {
	_, ok := d.index[stage]
	return ok
}

// Validate returns ErrUnknownStage when stage is not part of the sequence.
// The completion sentinel is valid.
func (d *Definition) Validate(stage models.Stage) error {
	if stage == models.StageComplete || d.Contains(stage) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
}

// RequiredGroupsFor returns the groups that must sign off on stage.
func (d *Definition) RequiredGroupsFor(stage models.Stage) ([]models.Group, error) {
	groups, ok := d.required[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	out := make([]models.Group, len(groups))
	copy(out, groups)
	return out, nil
}

// NextStage returns the successor of stage, or models.StageComplete after the
// last one.
func (d *Definition) NextStage(stage models.Stage) (models.Stage, error) {
	i, ok := d.index[stage]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if i == len(d.stages)-1 {
		return models.StageComplete, nil
	}
	return d.stages[i+1], nil
}

// Position returns the 1-based position of stage. StageComplete reports the
// length of the sequence.
func (d *Definition) Position(stage models.Stage) (int, error) {
	if stage == models.StageComplete {
		return len(d.stages), nil
	}
	i, ok := d.index[stage]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return i + 1, nil
}

// Groups returns every group referenced by any stage, sorted.
func (d *Definition) Groups() []models.Group {
	var all []models.Group
	for _, groups := range d.required {
		all = append(all, groups...)
	}
	return normalizeGroups(all)
}

func normalizeGroups(groups []models.Group) []models.Group {
	seen := make(map[models.Group]struct{}, len(groups))
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
