package workflow

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"initiative-mcp/pkg/models"
)

type fileDefinition struct {
	Stages []fileStage `yaml:"stages"`
}

type fileStage struct {
	ID     models.Stage   `yaml:"id"`
	Groups []models.Group `yaml:"groups"`
}

// LoadFile reads a workflow from a YAML document of the form
//
//	stages:
//	  - id: prd
//	    groups: [ba, design, dev]
//
// An empty path yields Default.
func LoadFile(path string) (*Definition, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a YAML workflow document.
func Parse(data []byte) (*Definition, error) {
	var doc fileDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	stages := make([]models.Stage, 0, len(doc.Stages))
	required := make(map[models.Stage][]models.Group, len(doc.Stages))
	for _, st := range doc.Stages {
		stages = append(stages, st.ID)
		required[st.ID] = append(required[st.ID], st.Groups...)
	}
	return New(stages, required)
}
