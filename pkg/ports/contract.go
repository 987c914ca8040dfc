package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// RunSnapshotStoreContract verifies that a SnapshotStore implementation
// adheres to the interface contract. Every adapter test runs this suite.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405.000")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewScenarioState("contract-scenario", runID, []domain.ActorState{
			{Name: "Alpha", Model: "test-model"},
		})
		state = state.WithTurn(3).WithMeta("note", "contract")

		require.NoError(t, store.Save(ctx, runID, state))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, state.RunID, loaded.RunID)
		assert.Equal(t, 3, loaded.Turn)
		assert.Equal(t, "contract", loaded.Meta["note"])
	})

	t.Run("Overwrite replaces previous snapshot", func(t *testing.T) {
		state := domain.NewScenarioState("contract-scenario", runID, nil)
		require.NoError(t, store.Save(ctx, runID, state.WithTurn(1)))
		require.NoError(t, store.Save(ctx, runID, state.WithTurn(2)))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Turn)
	})

	t.Run("Load non-existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		state := domain.NewScenarioState("contract-scenario", runID, nil)
		require.NoError(t, store.Save(ctx, runID, state))
		require.NoError(t, store.Delete(ctx, runID))

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)

		// Deleting again is idempotent.
		assert.NoError(t, store.Delete(ctx, runID))
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewScenarioState("s", id1, nil)))
		require.NoError(t, store.Save(ctx, id2, domain.NewScenarioState("s", id2, nil)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
