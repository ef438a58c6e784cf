package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"initiative-mcp/pkg/models"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
)

// Metadata is the frontmatter block written at the top of every artifact.
type Metadata struct {
	ID         string       `yaml:"id"`
	Initiative string       `yaml:"initiative"`
	Stage      models.Stage `yaml:"stage"`
	Created    time.Time    `yaml:"created"`
}

type envelope struct {
	Artifact Metadata `yaml:"artifact"`
}

// ParseFrontMatter extracts the metadata block and body of a document that
// starts with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var env envelope
	if err := yaml.Unmarshal(parts[0], &env); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	if env.Artifact.ID == "" || env.Artifact.Stage == "" {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	return env.Artifact, parts[1], nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.ID == "" {
		return nil, fmt.Errorf("artifact: metadata missing id")
	}
	meta.Created = meta.Created.UTC()
	data, err := yaml.Marshal(envelope{Artifact: meta})
	if err != nil {
		return nil, fmt.Errorf("artifact: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}
