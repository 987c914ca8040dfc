package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/pkg/adapters/memory"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

var _ ports.SnapshotStore = (*memory.Store)(nil)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, memory.New())
}

func TestMemoryStore_LoadReturnsIndependentCopy(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	state := domain.NewScenarioState("s", "run-copy", nil).WithMeta("k", "original")
	require.NoError(t, store.Save(ctx, "run-copy", state))

	first, err := store.Load(ctx, "run-copy")
	require.NoError(t, err)
	first.Meta["k"] = "mutated"

	second, err := store.Load(ctx, "run-copy")
	require.NoError(t, err)
	assert.Equal(t, "original", second.Meta["k"], "stored snapshot must not share memory with loaded copies")
}
