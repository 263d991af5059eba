// Package store constructs the single shared Redis client used as the
// tier-2 cache, the leader-election lock, and the snapshot stream. It is
// built once and injected into every consumer so all three concerns share
// one connection pool.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"odin-marketfeed/internal/config"
)

// NewClient parses cfg.URL and returns a ready-to-use Redis client. A
// malformed URL is a fatal configuration error; the process aborts before
// serving rather than degrading.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping verifies connectivity at startup so initialization failures surface
// before the service starts accepting connections.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
