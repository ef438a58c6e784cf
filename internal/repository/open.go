package repository

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"initiative-mcp/internal/config"
	"initiative-mcp/internal/logging"
	"initiative-mcp/internal/migrations"
)

// OpenConfigured builds the Opener selected by cfg.Storage.Driver, applying
// pending migrations for the database drivers. The returned close function
// releases the connection pool.
func OpenConfigured(ctx context.Context, cfg *config.Config, validate StageValidator, logger *logging.Logger) (Opener, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := initPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.Up(migrations.Postgres, migrations.PostgresURL(cfg.PostgresURL())); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Database connected", "driver", cfg.Storage.Driver, "host", cfg.DB.Host, "name", cfg.DB.Name)
		return NewPostgresOpener(pool, validate), pool.Close, nil

	case config.DriverSQLite:
		path := SQLitePath(cfg)
		if err := migrations.Up(migrations.SQLite, migrations.SQLiteURL(path)); err != nil {
			return nil, nil, err
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Database connected", "driver", cfg.Storage.Driver, "path", path)
		return NewSQLiteOpener(db, validate), func() { _ = db.Close() }, nil

	default:
		logger.Info("Using file storage", "root", cfg.Project.Root)
		return NewFileOpener(WithStageValidator(validate)), func() {}, nil
	}
}

// Migrate applies pending migrations for the configured database driver. It
// reports false for the file driver, which has no schema.
func Migrate(cfg *config.Config) (bool, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return true, migrations.Up(migrations.Postgres, migrations.PostgresURL(cfg.PostgresURL()))
	case config.DriverSQLite:
		return true, migrations.Up(migrations.SQLite, migrations.SQLiteURL(SQLitePath(cfg)))
	default:
		return false, nil
	}
}

// SQLitePath resolves storage.sqlite_path against the project root.
func SQLitePath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Storage.SQLitePath) {
		return cfg.Storage.SQLitePath
	}
	return filepath.Join(cfg.Project.Root, cfg.Storage.SQLitePath)
}

func initPostgres(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
