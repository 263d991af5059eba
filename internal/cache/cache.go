// Package cache implements the tiered cache: an in-process tier-1 map
// backed by a shared Redis tier-2, with single-flight request coalescing so
// concurrent callers on a missing key invoke the producer at most once.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"odin-marketfeed/internal/metrics"
)

// Entry is the cache's value object: an opaque JSON payload plus the
// bookkeeping needed to evaluate freshness. Retrieved by value (cloned) on
// read — callers never get a pointer into cache-owned state.
type Entry struct {
	Key        string
	Payload    json.RawMessage
	InsertedAt time.Time
	TTL        time.Duration
}

func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) >= e.TTL
}

// Producer computes the value for a cache miss.
type Producer func(ctx context.Context) (json.RawMessage, error)

// Cache is the two-tier KV store. Tier-1 is an in-process map guarded by a
// mutex (the cache holds few, well-known keys — one per data class plus the
// latest-snapshot key — so a single lock is simpler and just as correct as
// sharding).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	redis   *redis.Client
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates a Cache backed by the given shared Redis client. redisClient
// may be nil only in tests that want to exercise tier-1-only behavior.
func New(redisClient *redis.Client, logger *zap.Logger, metricsRegistry *metrics.Registry) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		redis:   redisClient,
		logger:  logger,
		metrics: metricsRegistry,
	}
}

// Get returns the freshest unexpired value from either tier. A tier-1 miss
// with a tier-2 hit promotes the value into tier-1 before returning; a
// tier-1 hit never triggers tier-2 I/O.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if payload, ok := c.getTier1(key); ok {
		c.recordHit()
		return payload, true
	}

	if c.redis == nil {
		return nil, false
	}

	raw, err := c.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.warnStoreError("tier-2 get", key, err)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.warnStoreError("tier-2 decode", key, err)
		return nil, false
	}
	if entry.expired(time.Now()) {
		return nil, false
	}

	c.putTier1(key, entry)
	c.recordHit()
	return entry.Payload, true
}

// Set writes payload to both tiers with the TTL derived from strategy.
// Tier-2 failures are logged as soft warnings; the call still succeeds from
// the caller's point of view.
func (c *Cache) Set(ctx context.Context, key string, payload json.RawMessage, strategy Strategy) {
	entry := Entry{Key: key, Payload: payload, InsertedAt: time.Now(), TTL: strategy.TTL}
	c.putTier1(key, entry)

	if c.redis == nil {
		return
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		c.warnStoreError("tier-2 encode", key, err)
		return
	}
	if err := c.redis.Set(ctx, redisKey(key), encoded, strategy.TTL).Err(); err != nil {
		c.warnStoreError("tier-2 set", key, err)
	}
}

// GetOrCompute returns the cached value if present; otherwise it runs
// producer at most once concurrently per key across all callers in this
// process, writes the result to both tiers, and returns it. Producer
// failure is propagated to every coalesced waiter.
func (c *Cache) GetOrCompute(ctx context.Context, key string, strategy Strategy, producer Producer) (json.RawMessage, error) {
	if payload, ok := c.Get(ctx, key); ok {
		return payload, nil
	}

	c.recordMiss()

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		return producer(ctx)
	})
	if shared && c.metrics != nil {
		c.metrics.CacheCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}

	payload := result.(json.RawMessage)
	c.Set(ctx, key, payload, strategy)
	return payload, nil
}

// PublishToStream appends fields as a new entry on streamKey, trimming the
// stream to approximately maxLen entries. Stream appends go to tier-2 only;
// with no store configured or the store unreachable, the error is returned
// for the caller to log as non-fatal.
func (c *Cache) PublishToStream(ctx context.Context, streamKey string, fields map[string]interface{}, maxLen int64) error {
	if c.redis == nil {
		return redis.ErrClosed
	}
	err := c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: maxLen,
		Approx: true,
		Values: fields,
	}).Err()
	if err != nil {
		c.warnStoreError("stream append", streamKey, err)
	}
	return err
}

func (c *Cache) getTier1(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return nil, false
	}
	return append(json.RawMessage(nil), entry.Payload...), true
}

func (c *Cache) putTier1(key string, entry Entry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

func (c *Cache) recordHit() {
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
}

func (c *Cache) warnStoreError(op, key string, err error) {
	if c.metrics != nil {
		c.metrics.CacheStoreError.Inc()
	}
	if c.logger != nil {
		c.logger.Warn("cache tier-2 degraded", zap.String("op", op), zap.String("key", key), zap.Error(err))
	}
}

func redisKey(key string) string {
	return "marketfeed:cache:" + key
}
