// Package redis provides a SnapshotStore backed by Redis, for deployments
// where runs are shared between replicas of the API server.
package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Store implements ports.SnapshotStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for snapshots. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for snapshots.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store connected to the given address.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "scenariolab:run:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the snapshot and registers the run in the index set.
func (s *Store) Save(ctx context.Context, runID string, state *domain.ScenarioState) error {
	data, err := domain.Serialize(state)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(runID), data, s.ttl)

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01, effectively never
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: runID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot to redis: %w", err)
	}
	return nil
}

// Load retrieves the latest snapshot for a run.
func (s *Store) Load(ctx context.Context, runID string) (*domain.ScenarioState, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot from redis: %w", err)
	}
	return domain.Deserialize([]byte(val))
}

// Delete removes the snapshot and its index entry.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns known run ids, lazily pruning expired index entries.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired runs: %w", err)
	}

	runs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
