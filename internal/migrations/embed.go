// Package migrations embeds the SQL schema of the database backed stores and
// applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres sqlite3
var FS embed.FS

// Dialects.
const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

// Up applies every pending migration of dialect against databaseURL. The URL
// scheme selects the driver: pgx5:// for Postgres, sqlite3:// for SQLite.
func Up(dialect, databaseURL string) error {
	sub, err := fs.Sub(FS, dialect)
	if err != nil {
		return fmt.Errorf("migrations: %s: %w", dialect, err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("migrations: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("migrations: connect: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// PostgresURL rewrites a postgres:// connection string for the pgx/v5
// migrate driver.
func PostgresURL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(connString, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return connString
}

// SQLiteURL builds the migrate URL for a SQLite database file.
func SQLiteURL(path string) string {
	return "sqlite3://" + path
}
