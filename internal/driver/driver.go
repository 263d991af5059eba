// Package driver implements the periodic tick loop: on each tick the leader
// fetches a fresh snapshot, caches it, appends it to the stream, and
// broadcasts it; a follower reads the cached latest snapshot and broadcasts
// that instead.
package driver

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"odin-marketfeed/internal/aggregator"
	"odin-marketfeed/internal/broadcast"
	"odin-marketfeed/internal/cache"
	"odin-marketfeed/internal/snapshot"
	"odin-marketfeed/internal/stream"
)

// LatestKey is the cache key the leader writes the most recent snapshot to
// and followers read it from.
const LatestKey = "latest_market_data"

// Driver runs the leader/follower tick loop.
type Driver struct {
	interval   time.Duration
	aggregator *aggregator.Aggregator
	cache      *cache.Cache
	stream     *stream.Publisher
	bus        *broadcast.Bus
	isLeader   *atomic.Bool
	logger     *zap.Logger
}

// New builds a Driver. isLeader is shared with the election monitor
// goroutine; the driver only ever reads it.
func New(interval time.Duration, agg *aggregator.Aggregator, c *cache.Cache, pub *stream.Publisher, bus *broadcast.Bus, isLeader *atomic.Bool, logger *zap.Logger) *Driver {
	return &Driver{
		interval:   interval,
		aggregator: agg,
		cache:      c,
		stream:     pub,
		bus:        bus,
		isLeader:   isLeader,
		logger:     logger,
	}
}

// Run blocks, ticking every interval until ctx is cancelled. Failures inside
// a tick are logged and never stop the loop.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	if d.isLeader.Load() {
		d.leaderTick(ctx)
		return
	}
	d.followerTick(ctx)
}

func (d *Driver) leaderTick(ctx context.Context) {
	snap, err := d.aggregator.FetchSnapshot(ctx, true)
	if err != nil {
		d.logger.Error("leader tick: fetch snapshot failed", zap.Error(err))
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		d.logger.Error("leader tick: marshal snapshot failed", zap.Error(err))
		return
	}

	d.cache.Set(ctx, LatestKey, payload, cache.RealTime)

	if err := d.stream.Publish(ctx, payload); err != nil {
		d.logger.Warn("leader tick: stream publish failed", zap.Error(err))
	}

	message, err := json.Marshal(snapshot.NewMessage(snap, time.Now()))
	if err != nil {
		d.logger.Error("leader tick: marshal message failed", zap.Error(err))
		return
	}

	count := d.bus.Broadcast(message)
	d.logger.Info("leader tick complete",
		zap.Bool("partial_failure", snap.PartialFailure),
		zap.Int64("fetch_duration_ms", snap.FetchDurationMS),
		zap.Int("subscribers", count),
	)
}

func (d *Driver) followerTick(ctx context.Context) {
	payload, ok := d.cache.Get(ctx, LatestKey)
	if !ok {
		d.logger.Warn("follower tick: latest_market_data not yet primed")
		return
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		d.logger.Error("follower tick: decode cached snapshot failed", zap.Error(err))
		return
	}

	message, err := json.Marshal(snapshot.NewMessage(snap, time.Now()))
	if err != nil {
		d.logger.Error("follower tick: marshal message failed", zap.Error(err))
		return
	}

	count := d.bus.Broadcast(message)
	d.logger.Info("follower tick complete", zap.Int("subscribers", count))
}
