// Package stream implements the durable append-only stream publisher:
// every successful snapshot fetch is appended to a capped Redis stream via
// the shared store so late-joining instances and downstream consumers can
// recover recent state. A stream outage never blocks cache reads/writes or
// the periodic driver.
package stream

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"odin-marketfeed/internal/cache"
)

// DefaultKey is the stream key snapshots are appended to.
const DefaultKey = "market_data_stream"

// DefaultMaxLen bounds the stream's approximate length so it never grows
// unbounded in a long-running deployment.
const DefaultMaxLen = 1000

// Publisher appends serialized snapshots to a capped stream in the shared
// store, through the cache's stream facility.
type Publisher struct {
	cache  *cache.Cache
	key    string
	maxLen int64
	logger *zap.Logger
}

// New creates a Publisher writing to DefaultKey with DefaultMaxLen trimming.
func New(c *cache.Cache, logger *zap.Logger) *Publisher {
	return &Publisher{cache: c, key: DefaultKey, maxLen: DefaultMaxLen, logger: logger}
}

// Publish appends payload (a serialized snapshot) as the "data" field of a
// new stream entry, trimming the stream to approximately maxLen entries.
// Errors are logged and returned; the periodic driver treats them as
// non-fatal and continues rather than aborting the tick.
func (p *Publisher) Publish(ctx context.Context, payload json.RawMessage) error {
	err := p.cache.PublishToStream(ctx, p.key, map[string]interface{}{"data": string(payload)}, p.maxLen)
	if err != nil && p.logger != nil {
		p.logger.Warn("stream publish failed", zap.String("stream", p.key), zap.Error(err))
	}
	return err
}
