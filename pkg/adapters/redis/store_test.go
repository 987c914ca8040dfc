package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/pkg/adapters/redis"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

var _ ports.SnapshotStore = (*redis.Store)(nil)

func newTestClient(t *testing.T) *backend.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return backend.NewClient(&backend.Options{Addr: mr.Addr()})
}

func TestRedisStore_Contract(t *testing.T) {
	store := redis.NewFromClient(newTestClient(t))
	ports.RunSnapshotStoreContract(t, store)
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	state := domain.NewScenarioState("s", "run-ttl", nil)
	require.NoError(t, store.Save(ctx, "run-ttl", state))

	_, err = store.Load(ctx, "run-ttl")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "run-ttl")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestRedisStore_PrefixIsolation(t *testing.T) {
	client := newTestClient(t)
	a := redis.NewFromClient(client, redis.WithPrefix("lab-a:"))
	b := redis.NewFromClient(client, redis.WithPrefix("lab-b:"))
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, "run-1", domain.NewScenarioState("s", "run-1", nil)))

	_, err := b.Load(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	runsB, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runsB)
}
