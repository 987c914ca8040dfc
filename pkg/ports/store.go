package ports

import (
	"context"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// SnapshotStore persists the entire ScenarioState keyed by run id. The
// orchestrator overwrites the snapshot at every turn boundary; writes must be
// atomic so a crash mid-write never corrupts the last good snapshot.
type SnapshotStore interface {
	// Save persists the full state for a run, replacing any previous snapshot.
	Save(ctx context.Context, runID string, state *domain.ScenarioState) error

	// Load retrieves the latest snapshot for a run.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.ScenarioState, error)

	// Delete removes the snapshot for a run.
	Delete(ctx context.Context, runID string) error

	// List returns the ids of all stored runs.
	List(ctx context.Context) ([]string, error)
}
