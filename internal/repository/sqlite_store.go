package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"initiative-mcp/pkg/models"
)

const sqliteTimeLayout = time.RFC3339Nano

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is a SQLite implementation of InitiativeStore scoped to one
// project.
type SQLiteStore struct {
	conn     *sql.DB
	db       sqlQuerier
	project  string
	validate StageValidator
}

// OpenSQLite opens the database file at path. Transactions take the write
// lock on BEGIN so concurrent advances serialize instead of failing late.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path))
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// NewSQLiteStore creates a SQLiteStore for project.
func NewSQLiteStore(db *sql.DB, project string, validate StageValidator) *SQLiteStore {
	return &SQLiteStore{conn: db, db: db, project: project, validate: validate}
}

// NewSQLiteOpener returns an Opener sharing db across projects.
func NewSQLiteOpener(db *sql.DB, validate StageValidator) Opener {
	return OpenerFunc(func(_ context.Context, project string) (InitiativeStore, error) {
		return NewSQLiteStore(db, project, validate), nil
	})
}

// Exists reports whether the initiative row is present.
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM initiatives WHERE project = ? AND key = ?", s.project, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("repository: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Load returns the initiative and its ordered history.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*models.Initiative, error) {
	var (
		in               models.Initiative
		stage            string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT key, title, current_stage, created_at, updated_at FROM initiatives WHERE project = ? AND key = ?",
		s.project, key).Scan(&in.Key, &in.Title, &stage, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: load %s: %w", key, err)
	}
	in.CurrentStage = models.Stage(stage)
	if in.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: created_at: %v", ErrCorruptRecord, s.project, key, err)
	}
	if in.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: updated_at: %v", ErrCorruptRecord, s.project, key, err)
	}
	if s.validate != nil && in.CurrentStage != models.StageComplete {
		if err := s.validate(in.CurrentStage); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: current_stage: %w", ErrCorruptRecord, s.project, key, err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, stage, action, groups, actor, note
		   FROM initiative_history
		  WHERE project = ? AND initiative_key = ?
		  ORDER BY seq`, s.project, key)
	if err != nil {
		return nil, fmt.Errorf("repository: load history %s: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec                     models.HistoryRecord
			recorded, stage, groups string
		)
		if err := rows.Scan(&rec.ID, &recorded, &stage, &rec.Action, &groups, &rec.Actor, &rec.Note); err != nil {
			return nil, fmt.Errorf("repository: scan history %s: %w", key, err)
		}
		if rec.Timestamp, err = time.Parse(sqliteTimeLayout, recorded); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: history %s: %v", ErrCorruptRecord, s.project, key, rec.ID, err)
		}
		rec.Stage = models.Stage(stage)
		if err := json.Unmarshal([]byte(groups), &rec.Groups); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: history %s groups: %v", ErrCorruptRecord, s.project, key, rec.ID, err)
		}
		if len(rec.Groups) == 0 {
			rec.Groups = nil
		}
		in.History = append(in.History, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: load history %s: %w", key, err)
	}
	return &in, nil
}

// Save upserts the initiative row.
func (s *SQLiteStore) Save(ctx context.Context, in *models.Initiative) error {
	if err := ValidateKey(in.Key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO initiatives (project, key, title, current_stage, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project, key) DO UPDATE
		    SET title = excluded.title,
		        current_stage = excluded.current_stage,
		        updated_at = excluded.updated_at`,
		s.project, in.Key, in.Title, string(in.CurrentStage),
		in.CreatedAt.UTC().Format(sqliteTimeLayout), in.UpdatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("repository: save %s: %w", in.Key, err)
	}
	return nil
}

// AppendHistory inserts one history row.
func (s *SQLiteStore) AppendHistory(ctx context.Context, key string, rec models.HistoryRecord) error {
	groups, err := json.Marshal(fromGroups(rec.Groups))
	if err != nil {
		return fmt.Errorf("repository: encode groups: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO initiative_history (id, project, initiative_key, recorded_at, stage, action, groups, actor, note)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		  WHERE EXISTS (SELECT 1 FROM initiatives WHERE project = ? AND key = ?)`,
		rec.ID, s.project, key, rec.Timestamp.UTC().Format(sqliteTimeLayout), string(rec.Stage), rec.Action,
		string(groups), rec.Actor, rec.Note, s.project, key)
	if err != nil {
		return fmt.Errorf("repository: append history %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: append history %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoInitiative, key)
	}
	return nil
}

// InTx runs fn against a store bound to one transaction.
func (s *SQLiteStore) InTx(ctx context.Context, _ string, fn func(store InitiativeStore) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin: %w", err)
	}
	if err := fn(&SQLiteStore{conn: s.conn, db: tx, project: s.project, validate: s.validate}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}
