package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"initiative-mcp/internal/migrations"
	"initiative-mcp/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	require.NoError(t, migrations.Up(migrations.Postgres, migrations.PostgresURL(connStr)))

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	t.Run("contract", func(t *testing.T) {
		runStoreContract(t, NewPostgresStore(pool, "/srv/payments", nil))
	})

	t.Run("projects are isolated", func(t *testing.T) {
		opener := NewPostgresOpener(pool, nil)
		a, err := opener.Open(ctx, "a")
		require.NoError(t, err)
		b, err := opener.Open(ctx, "b")
		require.NoError(t, err)

		require.NoError(t, a.Save(ctx, &models.Initiative{Key: "K", Title: "A", CurrentStage: "prd"}))
		exists, err := b.Exists(ctx, "K")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("unknown stage is reported as corruption", func(t *testing.T) {
		raw := NewPostgresStore(pool, "c", nil)
		require.NoError(t, raw.Save(ctx, &models.Initiative{Key: "K", Title: "t", CurrentStage: "qa"}))

		_, err := NewPostgresStore(pool, "c", knownStages("prd")).Load(ctx, "K")
		assert.ErrorIs(t, err, ErrCorruptRecord)
		assert.ErrorIs(t, err, errStage)
	})
}
