// Package memory provides an in-memory SnapshotStore, used for tests and
// dry runs where durability is not wanted.
package memory

import (
	"context"
	"sync"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Store implements ports.SnapshotStore in process memory. Snapshots are kept
// as serialized documents so loads return independent copies: a caller can
// never mutate the stored snapshot through a loaded state.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{snapshots: make(map[string][]byte)}
}

// Save persists the state for a run.
func (s *Store) Save(ctx context.Context, runID string, state *domain.ScenarioState) error {
	data, err := domain.Serialize(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[runID] = data
	return nil
}

// Load retrieves the state for a run.
func (s *Store) Load(ctx context.Context, runID string) (*domain.ScenarioState, error) {
	s.mu.RLock()
	data, ok := s.snapshots[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return domain.Deserialize(data)
}

// Delete removes the snapshot for a run.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, runID)
	return nil
}

// List returns all stored run ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		runs = append(runs, id)
	}
	return runs, nil
}
