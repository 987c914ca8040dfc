package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteMirrorRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	mirror, err := NewSQLiteMirror(ctx, dir)
	require.NoError(t, err)
	defer mirror.Close()

	entry := Entry{
		Key:          Fingerprint("claude-sonnet-4", "hello"),
		Value:        "world",
		Model:        "claude-sonnet-4",
		InputTokens:  10,
		OutputTokens: 5,
		CostUSD:      0.001,
		InsertedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TTL:          time.Hour,
	}
	require.NoError(t, mirror.Store(entry))

	entries, err := mirror.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry, entries[0])
}

func TestSQLiteMirrorUpsert(t *testing.T) {
	ctx := context.Background()
	mirror, err := NewSQLiteMirror(ctx, t.TempDir())
	require.NoError(t, err)
	defer mirror.Close()

	key := Fingerprint("m", "p")
	require.NoError(t, mirror.Store(Entry{Key: key, Value: "old", Model: "m", InsertedAt: time.Now()}))
	require.NoError(t, mirror.Store(Entry{Key: key, Value: "new", Model: "m", InsertedAt: time.Now()}))

	entries, err := mirror.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Value)
}

func TestCacheRehydratesFromMirror(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	mirror, err := NewSQLiteMirror(ctx, dir)
	require.NoError(t, err)

	// First process lifetime: populate through the cache.
	first := New(WithMirror(mirror), WithTTL(time.Hour))
	liveKey := Fingerprint("m", "live")
	first.Put(liveKey, Entry{Value: "survivor", Model: "m"})

	expiredKey := Fingerprint("m", "expired")
	require.NoError(t, mirror.Store(Entry{
		Key:        expiredKey,
		Value:      "stale",
		Model:      "m",
		InsertedAt: time.Now().Add(-2 * time.Hour),
		TTL:        time.Hour,
	}))
	require.NoError(t, mirror.Close())

	// Second process lifetime: rehydrate from disk.
	reopened, err := NewSQLiteMirror(ctx, dir)
	require.NoError(t, err)
	defer reopened.Close()

	second := New(WithMirror(reopened))
	got, ok := second.Get(liveKey, false)
	require.True(t, ok, "non-expired durable entries are rehydrated")
	assert.Equal(t, "survivor", got.Value)

	_, ok = second.Get(expiredKey, false)
	assert.False(t, ok, "expired durable entries are not rehydrated")
}
