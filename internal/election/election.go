// Package election implements Redis-based leader election: SET-NX-EX
// acquisition, Lua-atomic renew/release, and a heartbeat monitor loop.
// Renew and release must compare ownership and mutate in one atomic step; a
// GET-then-SET sequence would lose the lock under contention, hence the Lua
// scripts.
package election

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"odin-marketfeed/internal/metrics"
)

const (
	electionKey     = "websocket:leader"
	lockTTL         = 10 * time.Second
	heartbeatPeriod = 5 * time.Second
)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Elector holds the distributed lock state for one node.
type Elector struct {
	redis   *redis.Client
	nodeID  string
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates an Elector for nodeID against the shared Redis client.
func New(redisClient *redis.Client, nodeID string, logger *zap.Logger, metricsRegistry *metrics.Registry) *Elector {
	return &Elector{redis: redisClient, nodeID: nodeID, logger: logger, metrics: metricsRegistry}
}

// TryAcquire atomically sets the election key to this node's id with a TTL,
// only if the key does not already exist. Returns true iff this call
// created the key.
func (e *Elector) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := e.redis.SetNX(ctx, electionKey, e.nodeID, lockTTL).Result()
	if err != nil {
		return false, err
	}
	if acquired && e.logger != nil {
		e.logger.Info("leadership acquired", zap.String("node_id", e.nodeID))
	}
	return acquired, nil
}

// IsLeader reports whether the election key currently holds this node's id.
func (e *Elector) IsLeader(ctx context.Context) (bool, error) {
	current, err := e.redis.Get(ctx, electionKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == e.nodeID, nil
}

// Renew extends the lock TTL if, and only if, this node still owns it.
// Returns true iff leadership was successfully renewed.
func (e *Elector) Renew(ctx context.Context) (bool, error) {
	result, err := renewScript.Run(ctx, e.redis, []string{electionKey}, e.nodeID, int(lockTTL.Seconds())).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// Release deletes the election key if this node owns it. Idempotent:
// releasing when not the owner is a no-op, not an error.
func (e *Elector) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, e.redis, []string{electionKey}, e.nodeID).Result()
	return err
}

// Monitor runs a heartbeat loop: every heartbeatPeriod it renews leadership
// if already leader, or attempts to acquire it otherwise, storing the
// outcome in flag. It returns when ctx is cancelled.
func (e *Elector) Monitor(ctx context.Context, flag *atomic.Bool) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	// Contend for leadership immediately rather than sitting as a follower
	// for a full heartbeat after startup.
	e.tick(ctx, flag)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, flag)
		}
	}
}

func (e *Elector) tick(ctx context.Context, flag *atomic.Bool) {
	wasLeader := flag.Load()

	var isLeader bool
	var err error
	if wasLeader {
		isLeader, err = e.Renew(ctx)
	} else {
		isLeader, err = e.TryAcquire(ctx)
	}
	if err != nil {
		if e.logger != nil {
			e.logger.Error("leader election heartbeat failed", zap.Error(err))
		}
		isLeader = false
	}

	flag.Store(isLeader)
	if e.metrics != nil {
		if isLeader {
			e.metrics.IsLeader.Set(1)
		} else {
			e.metrics.IsLeader.Set(0)
		}
	}

	if isLeader != wasLeader {
		if e.metrics != nil {
			e.metrics.LeaderTransitions.Inc()
		}
		if e.logger != nil {
			if isLeader {
				e.logger.Info("leadership acquired", zap.String("node_id", e.nodeID))
			} else {
				e.logger.Warn("leadership lost", zap.String("node_id", e.nodeID))
			}
		}
	}
}

// NodeID returns this elector's node identifier.
func (e *Elector) NodeID() string {
	return e.nodeID
}
