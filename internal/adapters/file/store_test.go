package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/internal/adapters/file"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

var _ ports.SnapshotStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	state := domain.NewScenarioState("s", "run-1", nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, "run-1", state.WithTurn(i)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1.json", entries[0].Name())
}

func TestFileStore_SnapshotIsValidJSONDocument(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	state := domain.NewScenarioState("s", "run-doc", []domain.ActorState{{Name: "A", Model: "mock-model"}})
	require.NoError(t, store.Save(ctx, "run-doc", state))

	data, err := os.ReadFile(filepath.Join(dir, "run-doc.json"))
	require.NoError(t, err)

	loaded, err := domain.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "run-doc", loaded.RunID)
}

func TestFileStore_EmptyRunID(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, "", domain.NewScenarioState("s", "", nil)))
	_, err := store.Load(ctx, "")
	assert.Error(t, err)
}
