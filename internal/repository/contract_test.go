package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"initiative-mcp/pkg/models"
)

// runStoreContract exercises the behaviour every InitiativeStore shares.
func runStoreContract(t *testing.T, store InitiativeStore) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Load absent", func(t *testing.T) {
		in, err := store.Load(ctx, "MISSING")
		require.NoError(t, err)
		assert.Nil(t, in)

		exists, err := store.Exists(ctx, "MISSING")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Save, append and load", func(t *testing.T) {
		in := &models.Initiative{
			Key:          "INIT-1",
			Title:        "Payments",
			CurrentStage: "prd",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, store.Save(ctx, in))

		created := models.HistoryRecord{ID: uuid.NewString(), Timestamp: now, Stage: "prd", Action: models.ActionCreated}
		require.NoError(t, store.AppendHistory(ctx, in.Key, created))

		advanced := models.HistoryRecord{
			ID:        uuid.NewString(),
			Timestamp: now.Add(time.Minute),
			Stage:     "prd",
			Action:    models.ActionAdvanced,
			Groups:    []models.Group{"ba", "design", "dev"},
			Actor:     "ana@example.com",
		}
		require.NoError(t, store.AppendHistory(ctx, in.Key, advanced))

		in.CurrentStage = "ux"
		in.UpdatedAt = now.Add(time.Minute)
		require.NoError(t, store.Save(ctx, in))

		exists, err := store.Exists(ctx, in.Key)
		require.NoError(t, err)
		assert.True(t, exists)

		loaded, err := store.Load(ctx, in.Key)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "Payments", loaded.Title)
		assert.Equal(t, models.Stage("ux"), loaded.CurrentStage)
		assert.True(t, now.Equal(loaded.CreatedAt))
		assert.True(t, now.Add(time.Minute).Equal(loaded.UpdatedAt))
		require.Len(t, loaded.History, 2)
		assert.Equal(t, created.ID, loaded.History[0].ID)
		assert.Equal(t, models.ActionCreated, loaded.History[0].Action)
		assert.Empty(t, loaded.History[0].Groups)
		assert.Equal(t, advanced.ID, loaded.History[1].ID)
		assert.Equal(t, advanced.Groups, loaded.History[1].Groups)
		assert.Equal(t, advanced.Actor, loaded.History[1].Actor)
		assert.True(t, advanced.Timestamp.Equal(loaded.History[1].Timestamp))
	})

	t.Run("AppendHistory unknown key", func(t *testing.T) {
		err := store.AppendHistory(ctx, "GHOST", models.HistoryRecord{
			ID: uuid.NewString(), Timestamp: now, Stage: "prd", Action: models.ActionAdvanced,
		})
		assert.ErrorIs(t, err, ErrNoInitiative)
	})

	t.Run("InTx", func(t *testing.T) {
		in := &models.Initiative{Key: "INIT-TX", Title: "Tx", CurrentStage: "prd", CreatedAt: now, UpdatedAt: now}
		err := RunInTx(ctx, store, in.Key, func(tx InitiativeStore) error {
			if err := tx.Save(ctx, in); err != nil {
				return err
			}
			return tx.AppendHistory(ctx, in.Key, models.HistoryRecord{
				ID: uuid.NewString(), Timestamp: now, Stage: "prd", Action: models.ActionCreated,
			})
		})
		require.NoError(t, err)

		loaded, err := store.Load(ctx, in.Key)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Len(t, loaded.History, 1)
	})
}
