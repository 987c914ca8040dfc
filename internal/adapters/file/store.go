// Package file provides the default durable SnapshotStore: one JSON snapshot
// document per run, overwritten atomically at each turn boundary.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Store implements ports.SnapshotStore on the local filesystem.
type Store struct {
	BasePath string
}

// New creates a Store rooted at basePath. If basePath is empty it defaults
// to ".scenariolab/runs".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".scenariolab", "runs")
	}
	return &Store{BasePath: basePath}
}

// Save persists the snapshot atomically: write to a temp file in the same
// directory, fsync, then rename over the destination. A crash mid-write never
// corrupts the last good snapshot.
func (s *Store) Save(ctx context.Context, runID string, state *domain.ScenarioState) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure run directory: %w", err)
	}

	data, err := domain.Serialize(state)
	if err != nil {
		return err
	}

	destPath := filepath.Join(s.BasePath, runID+".json")

	// Same directory as the destination, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+runID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync snapshot: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Load retrieves the latest snapshot for a run.
func (s *Store) Load(ctx context.Context, runID string) (*domain.ScenarioState, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	data, err := os.ReadFile(filepath.Join(s.BasePath, runID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return domain.Deserialize(data)
}

// Delete removes the snapshot for a run. Deleting a missing run is a no-op.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	err := os.Remove(filepath.Join(s.BasePath, runID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns all persisted run ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, "tmp-") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(name, ".json"))
	}
	return runs, nil
}
