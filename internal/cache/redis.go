// Package cache provides the Redis-backed advisory snapshot cache. The
// store is always authoritative; entries carry a short TTL and are dropped
// whenever the engine broadcasts an event for the auction.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/engine"
)

// SnapshotCache caches auction state snapshots in Redis.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ engine.SnapshotCache = (*SnapshotCache)(nil)

// Connect opens a Redis client and verifies connectivity.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

func snapshotKey(auctionID uuid.UUID) string {
	return "auction:state:" + auctionID.String()
}

// Get returns the cached snapshot, or a miss on any error: a broken cache
// read must never fail the caller, the store serves the fallback.
func (c *SnapshotCache) Get(ctx context.Context, auctionID uuid.UUID) (*engine.StateSnapshot, bool) {
	data, err := c.rdb.Get(ctx, snapshotKey(auctionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("snapshot cache read failed")
		}
		return nil, false
	}
	var snap engine.StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("snapshot cache entry corrupt")
		return nil, false
	}
	return &snap, true
}

func (c *SnapshotCache) Set(ctx context.Context, auctionID uuid.UUID, snap *engine.StateSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("snapshot marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, snapshotKey(auctionID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("snapshot cache write failed")
	}
}

func (c *SnapshotCache) Invalidate(ctx context.Context, auctionID uuid.UUID) {
	if err := c.rdb.Del(ctx, snapshotKey(auctionID)).Err(); err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("snapshot cache invalidate failed")
	}
}
