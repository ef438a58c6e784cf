package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"initiative-mcp/pkg/models"
)

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL implementation of InitiativeStore scoped to
// one project.
type PostgresStore struct {
	pool     *pgxpool.Pool
	db       pgQuerier
	project  string
	validate StageValidator
}

// NewPostgresStore creates a PostgresStore for project.
func NewPostgresStore(pool *pgxpool.Pool, project string, validate StageValidator) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool, project: project, validate: validate}
}

// NewPostgresOpener returns an Opener sharing pool across projects.
func NewPostgresOpener(pool *pgxpool.Pool, validate StageValidator) Opener {
	return OpenerFunc(func(_ context.Context, project string) (InitiativeStore, error) {
		return NewPostgresStore(pool, project, validate), nil
	})
}

// Exists reports whether the initiative row is present.
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM initiatives WHERE project = $1 AND key = $2)",
		s.project, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: exists %s: %w", key, err)
	}
	return exists, nil
}

// Load returns the initiative and its ordered history.
func (s *PostgresStore) Load(ctx context.Context, key string) (*models.Initiative, error) {
	var in models.Initiative
	err := s.db.QueryRow(ctx,
		"SELECT key, title, current_stage, created_at, updated_at FROM initiatives WHERE project = $1 AND key = $2",
		s.project, key).
		Scan(&in.Key, &in.Title, &in.CurrentStage, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: load %s: %w", key, err)
	}
	if s.validate != nil && in.CurrentStage != models.StageComplete {
		if err := s.validate(in.CurrentStage); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: current_stage: %w", ErrCorruptRecord, s.project, key, err)
		}
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, recorded_at, stage, action, groups, actor, note
		   FROM initiative_history
		  WHERE project = $1 AND initiative_key = $2
		  ORDER BY seq`, s.project, key)
	if err != nil {
		return nil, fmt.Errorf("repository: load history %s: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.HistoryRecord
		var groups []string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Stage, &rec.Action, &groups, &rec.Actor, &rec.Note); err != nil {
			return nil, fmt.Errorf("repository: scan history %s: %w", key, err)
		}
		rec.Groups = toGroups(groups)
		in.History = append(in.History, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: load history %s: %w", key, err)
	}
	return &in, nil
}

// Save upserts the initiative row.
func (s *PostgresStore) Save(ctx context.Context, in *models.Initiative) error {
	if err := ValidateKey(in.Key); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO initiatives (project, key, title, current_stage, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (project, key) DO UPDATE
		    SET title = EXCLUDED.title,
		        current_stage = EXCLUDED.current_stage,
		        updated_at = EXCLUDED.updated_at`,
		s.project, in.Key, in.Title, string(in.CurrentStage), in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: save %s: %w", in.Key, err)
	}
	return nil
}

// AppendHistory inserts one history row.
func (s *PostgresStore) AppendHistory(ctx context.Context, key string, rec models.HistoryRecord) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO initiative_history (id, project, initiative_key, recorded_at, stage, action, groups, actor, note)
		 SELECT $1::text, $2::text, $3::text, $4::timestamptz, $5::text, $6::text, $7::text[], $8::text, $9::text
		  WHERE EXISTS (SELECT 1 FROM initiatives WHERE project = $2 AND key = $3)`,
		rec.ID, s.project, key, rec.Timestamp, string(rec.Stage), rec.Action, fromGroups(rec.Groups), rec.Actor, rec.Note)
	if err != nil {
		return fmt.Errorf("repository: append history %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNoInitiative, key)
	}
	return nil
}

// InTx runs fn against a store bound to one transaction. A transaction
// scoped advisory lock on project/key serializes writers across processes,
// including concurrent creates of a key that has no row yet.
func (s *PostgresStore) InTx(ctx context.Context, key string, fn func(store InitiativeStore) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.project+"/"+key); err != nil {
			return fmt.Errorf("repository: lock %s: %w", key, err)
		}
		return fn(&PostgresStore{
			pool:     s.pool,
			db:       tx,
			project:  s.project,
			validate: s.validate,
		})
	})
}

func toGroups(in []string) []models.Group {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Group, len(in))
	for i, g := range in {
		out[i] = models.Group(g)
	}
	return out
}

func fromGroups(in []models.Group) []string {
	out := make([]string, len(in))
	for i, g := range in {
		out[i] = string(g)
	}
	return out
}
