// Package artifact writes the placeholder documents an initiative produces at
// each workflow stage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"initiative-mcp/pkg/models"
)

// Dir is the directory, relative to a project root, holding artifacts.
const Dir = "initiatives"

var stageTitles = map[models.Stage]string{
	"prd":           "Product Requirements Document",
	"ux":            "UX Design",
	"architecture":  "Architecture",
	"epics_stories": "Epics and Stories",
	"readiness":     "Implementation Readiness",
}

// Materializer creates <root>/initiatives/<key>/<stage>.md placeholders.
type Materializer struct {
	root string
	now  func() time.Time
}

// Option customizes a Materializer.
type Option func(*Materializer)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Materializer) {
		m.now = clock
	}
}

// NewMaterializer builds a materializer for the project at root.
func NewMaterializer(root string, opts ...Option) *Materializer {
	m := &Materializer{root: root, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create writes the placeholder for stage. A document that already exists is
// kept as is and its reference returned.
func (m *Materializer) Create(_ context.Context, key string, stage models.Stage) (models.ArtifactRef, error) {
	if err := models.ValidateKey(key); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("artifact: %w", err)
	}
	path := filepath.Join(m.root, Dir, key, string(stage)+".md")

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		meta, _, perr := ParseFrontMatter(existing)
		if perr != nil {
			// hand-written document without our header
			return models.ArtifactRef{Stage: stage, Path: path}, nil
		}
		return models.ArtifactRef{ID: meta.ID, Stage: stage, Path: path}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return models.ArtifactRef{}, fmt.Errorf("artifact: read %s: %w", path, err)
	}

	meta := Metadata{
		ID:         uuid.NewString(),
		Initiative: key,
		Stage:      stage,
		Created:    m.now(),
	}
	doc, err := WriteFrontMatter(meta, placeholderBody(key, stage))
	if err != nil {
		return models.ArtifactRef{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("artifact: ensure dir: %w", err)
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("artifact: write %s: %w", path, err)
	}
	return models.ArtifactRef{ID: meta.ID, Stage: stage, Path: path}, nil
}

func placeholderBody(key string, stage models.Stage) []byte {
	title, ok := stageTitles[stage]
	if !ok {
		title = strings.ReplaceAll(string(stage), "_", " ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", key, title)
	b.WriteString("<!-- Replace this placeholder with the stage document, then open a pull request for review. -->\n")
	return []byte(b.String())
}
