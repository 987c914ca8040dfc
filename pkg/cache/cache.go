// Package cache provides the content-addressed response cache for
// externally-billed model calls. Entries are keyed by a deterministic
// fingerprint over (model id, rendered prompt), expire by TTL and are evicted
// least-recently-used when the table is full. An optional durable mirror
// persists entries across process restarts.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
)

// Fingerprint derives the cache key from a model identifier and the fully
// rendered prompt. The same inputs always produce the same key.
func Fingerprint(model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one cached model response.
type Entry struct {
	Key          string        `json:"key"`
	Value        string        `json:"value"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	InsertedAt   time.Time     `json:"inserted_at"`
	TTL          time.Duration `json:"ttl"`
}

// expired reports whether the entry has outlived its TTL at instant now.
// TTL 0 means no expiry until evicted.
func (e Entry) expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.InsertedAt.Add(e.TTL))
}

// Stats are cumulative cache counters. They are resettable independently of
// the stored entries.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	TokensSaved int64   `json:"tokens_saved"`
	SavedUSD    float64 `json:"saved_usd"`
}

// DefaultMaxEntries bounds the in-memory table when no limit is configured.
const DefaultMaxEntries = 1024

// Cache is a concurrency-safe TTL+LRU response cache.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element // key -> element holding Entry
	order      *list.List               // front = most recently used
	maxEntries int
	defaultTTL time.Duration
	stats      Stats
	mirror     Mirror
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the Cache.
type Option func(*Cache)

// WithMaxEntries bounds the in-memory table. Inserting beyond the bound
// evicts the least-recently-used entry first.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithTTL sets the default time-to-live for inserted entries.
// Zero means entries never expire (until evicted).
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

// WithMirror attaches a durable mirror. Non-expired mirrored entries are
// rehydrated into memory immediately.
func WithMirror(m Mirror) Option {
	return func(c *Cache) {
		c.mirror = m
	}
}

// WithLogger configures the cache logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// withClock overrides the time source. Used by tests.
func withClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a response cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: DefaultMaxEntries,
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mirror != nil {
		c.rehydrate()
	}
	return c
}

// Get looks up a cached response. bypass forces a miss even on a matching
// entry; the entry itself is left in place.
func (c *Cache) Get(key string, bypass bool) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bypass {
		c.stats.Misses++
		return Entry{}, false
	}

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return Entry{}, false
	}

	entry := elem.Value.(Entry)
	if entry.expired(c.now()) {
		c.removeLocked(elem)
		c.stats.Misses++
		return Entry{}, false
	}

	c.order.MoveToFront(elem)
	c.stats.Hits++
	c.stats.TokensSaved += int64(entry.InputTokens + entry.OutputTokens)
	c.stats.SavedUSD += entry.CostUSD
	return entry, true
}

// Put inserts an entry, evicting the least-recently-used one first when the
// table is full. The entry inherits the cache's default TTL.
func (c *Cache) Put(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.Key = key
	entry.InsertedAt = c.now().UTC()
	if entry.TTL == 0 {
		entry.TTL = c.defaultTTL
	}

	if elem, ok := c.entries[key]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
	} else {
		if c.maxEntries > 0 && c.order.Len() >= c.maxEntries {
			c.evictOldestLocked()
		}
		c.entries[key] = c.order.PushFront(entry)
	}

	if c.mirror != nil {
		if err := c.mirror.Store(entry); err != nil {
			c.logger.Warn("cache mirror write failed", "key", key, "err", err)
		}
	}
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a copy of the cumulative counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats zeroes the counters without touching stored entries.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

// Clear drops all in-memory entries. Counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *Cache) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeLocked(oldest)
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := elem.Value.(Entry)
	c.order.Remove(elem)
	delete(c.entries, entry.Key)
}

// rehydrate loads non-expired mirrored entries into memory, oldest first so
// LRU order roughly matches insertion order.
func (c *Cache) rehydrate() {
	entries, err := c.mirror.LoadAll()
	if err != nil {
		c.logger.Warn("cache mirror rehydration failed", "err", err)
		return
	}
	now := c.now()
	for _, entry := range entries {
		if entry.expired(now) {
			continue
		}
		if c.maxEntries > 0 && c.order.Len() >= c.maxEntries {
			break
		}
		c.entries[entry.Key] = c.order.PushFront(entry)
	}
}
