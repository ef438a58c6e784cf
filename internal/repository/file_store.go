package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"initiative-mcp/pkg/models"
)

// StateDir is the directory, relative to a project root, that holds the
// persisted initiative records and the governance file.
const StateDir = ".initiatives"

const schemaVersion = 1

// FileStore keeps one YAML document per initiative under
// <root>/.initiatives/<key>.yaml.
type FileStore struct {
	dir      string
	validate StageValidator
}

// FileStoreOption customizes a FileStore.
type FileStoreOption func(*FileStore)

// WithStageValidator checks current_stage of every loaded record.
func WithStageValidator(v StageValidator) FileStoreOption {
	return func(s *FileStore) {
		s.validate = v
	}
}

// NewFileStore creates a store rooted at the project directory root.
func NewFileStore(root string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{dir: filepath.Join(root, StateDir)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFileOpener returns an Opener that treats the project as a directory.
func NewFileOpener(opts ...FileStoreOption) Opener {
	return OpenerFunc(func(_ context.Context, project string) (InitiativeStore, error) {
		if project == "" {
			return nil, errors.New("repository: project directory is required")
		}
		return NewFileStore(project, opts...), nil
	})
}

type fileRecord struct {
	Schema       int                    `yaml:"schema"`
	Key          string                 `yaml:"key"`
	Title        string                 `yaml:"title"`
	CurrentStage models.Stage           `yaml:"current_stage"`
	CreatedAt    time.Time              `yaml:"created_at"`
	UpdatedAt    time.Time              `yaml:"updated_at"`
	History      []models.HistoryRecord `yaml:"history"`
}

// Exists reports whether the initiative file is present.
func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads and validates the initiative file.
func (s *FileStore) Load(_ context.Context, key string) (*models.Initiative, error) {
	rec, err := s.read(key)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.initiative(), nil
}

// Save writes the initiative header, keeping any history already on disk.
func (s *FileStore) Save(_ context.Context, initiative *models.Initiative) error {
	rec, err := s.read(initiative.Key)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &fileRecord{Schema: schemaVersion, Key: initiative.Key}
	}
	rec.setHeader(initiative)
	return s.write(rec)
}

// AppendHistory adds record to the end of the initiative history.
func (s *FileStore) AppendHistory(_ context.Context, key string, record models.HistoryRecord) error {
	rec, err := s.read(key)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNoInitiative, key)
	}
	rec.History = append(rec.History, record)
	return s.write(rec)
}

// InTx runs fn against a view of key that buffers Save and AppendHistory in
// memory. The record is written once, atomically, when fn succeeds, so a
// failed call leaves the file untouched. Other keys pass straight through.
func (s *FileStore) InTx(_ context.Context, key string, fn func(store InitiativeStore) error) error {
	rec, err := s.read(key)
	if err != nil && !errors.Is(err, ErrCorruptRecord) {
		return err
	}
	tx := &fileTx{FileStore: s, key: key, rec: rec, readErr: err}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	return s.write(tx.rec)
}

// fileTx is the buffered view handed out by FileStore.InTx.
type fileTx struct {
	*FileStore
	key     string
	rec     *fileRecord
	readErr error
	dirty   bool
}

func (t *fileTx) Exists(ctx context.Context, key string) (bool, error) {
	if key != t.key {
		return t.FileStore.Exists(ctx, key)
	}
	return t.rec != nil || t.readErr != nil, nil
}

func (t *fileTx) Load(ctx context.Context, key string) (*models.Initiative, error) {
	if key != t.key {
		return t.FileStore.Load(ctx, key)
	}
	if t.readErr != nil || t.rec == nil {
		return nil, t.readErr
	}
	in := t.rec.initiative()
	in.History = append([]models.HistoryRecord(nil), t.rec.History...)
	return in, nil
}

func (t *fileTx) Save(ctx context.Context, initiative *models.Initiative) error {
	if initiative.Key != t.key {
		return t.FileStore.Save(ctx, initiative)
	}
	if t.readErr != nil {
		return t.readErr
	}
	if t.rec == nil {
		t.rec = &fileRecord{Schema: schemaVersion, Key: initiative.Key}
	}
	t.rec.setHeader(initiative)
	t.dirty = true
	return nil
}

func (t *fileTx) AppendHistory(ctx context.Context, key string, record models.HistoryRecord) error {
	if key != t.key {
		return t.FileStore.AppendHistory(ctx, key, record)
	}
	if t.readErr != nil {
		return t.readErr
	}
	if t.rec == nil {
		return fmt.Errorf("%w: %s", ErrNoInitiative, key)
	}
	t.rec.History = append(t.rec.History, record)
	t.dirty = true
	return nil
}

func (r *fileRecord) initiative() *models.Initiative {
	return &models.Initiative{
		Key:          r.Key,
		Title:        r.Title,
		CurrentStage: r.CurrentStage,
		History:      r.History,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r *fileRecord) setHeader(in *models.Initiative) {
	r.Title = in.Title
	r.CurrentStage = in.CurrentStage
	r.CreatedAt = in.CreatedAt
	r.UpdatedAt = in.UpdatedAt
}

func (s *FileStore) read(key string) (*fileRecord, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: read %s: %w", path, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, path, err)
	}
	if rec.Key != key {
		return nil, fmt.Errorf("%w: %s: key %q does not match file name", ErrCorruptRecord, path, rec.Key)
	}
	if s.validate != nil && rec.CurrentStage != models.StageComplete {
		if err := s.validate(rec.CurrentStage); err != nil {
			return nil, fmt.Errorf("%w: %s: current_stage: %w", ErrCorruptRecord, path, err)
		}
	}
	return rec, nil
}

func decodeRecord(data []byte) (*fileRecord, error) {
	var rec fileRecord
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	switch {
	case rec.Schema != schemaVersion:
		return nil, fmt.Errorf("unsupported schema %d", rec.Schema)
	case rec.Key == "":
		return nil, errors.New("missing key")
	case rec.Title == "":
		return nil, errors.New("missing title")
	case rec.CurrentStage == "":
		return nil, errors.New("missing current_stage")
	}
	for i, h := range rec.History {
		if h.Stage == "" || h.Action == "" {
			return nil, fmt.Errorf("history[%d]: missing stage or action", i)
		}
	}
	return &rec, nil
}

func (s *FileStore) write(rec *fileRecord) error {
	path, err := s.path(rec.Key)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("repository: encode %s: %w", rec.Key, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("repository: ensure state dir: %w", err)
	}
	return writeFileAtomic(path, data)
}

func (s *FileStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+".yaml"), nil
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("repository: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("repository: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("repository: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("repository: replace %s: %w", path, err)
	}
	return nil
}
