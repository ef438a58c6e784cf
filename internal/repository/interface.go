package repository

import (
	"context"
	"errors"

	"initiative-mcp/pkg/models"
)

var (
	// ErrInvalidKey is returned for keys a store cannot address.
	ErrInvalidKey = models.ErrInvalidKey
	// ErrCorruptRecord is returned when a persisted initiative fails schema
	// validation on load.
	ErrCorruptRecord = errors.New("repository: corrupt initiative record")
	// ErrNoInitiative is returned by AppendHistory for a key that was never
	// saved.
	ErrNoInitiative = errors.New("repository: initiative does not exist")
)

// ValidateKey applies models.ValidateKey, the key rule every store shares.
func ValidateKey(key string) error {
	return models.ValidateKey(key)
}

// InitiativeStore persists initiatives of a single project. Every call is
// atomic on its own.
type InitiativeStore interface {
	// Exists reports whether key denotes a saved initiative.
	Exists(ctx context.Context, key string) (bool, error)
	// Load returns the initiative with its full history, or nil when absent.
	Load(ctx context.Context, key string) (*models.Initiative, error)
	// Save creates or updates the initiative's key, title, stage and
	// timestamps. History is written only through AppendHistory.
	Save(ctx context.Context, initiative *models.Initiative) error
	// AppendHistory appends one record to the initiative's history.
	AppendHistory(ctx context.Context, key string, record models.HistoryRecord) error
}

// Transactional is implemented by stores that can run several calls on one
// key as a single serialized read-modify-write transaction.
type Transactional interface {
	InTx(ctx context.Context, key string, fn func(store InitiativeStore) error) error
}

// StageValidator rejects stage values that the running workflow does not
// know. Stores call it while decoding records.
type StageValidator func(stage models.Stage) error

// Opener resolves the store of a project.
type Opener interface {
	Open(ctx context.Context, project string) (InitiativeStore, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, project string) (InitiativeStore, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, project string) (InitiativeStore, error) {
	return f(ctx, project)
}

// RunInTx runs fn inside a transaction when store supports one, and directly
// otherwise.
func RunInTx(ctx context.Context, store InitiativeStore, key string, fn func(store InitiativeStore) error) error {
	if tx, ok := store.(Transactional); ok {
		return tx.InTx(ctx, key, fn)
	}
	return fn(store)
}
