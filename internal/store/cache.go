package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/model"
)

// CachedStore layers a Redis snapshot cache in front of a TerritoryStore.
// Snapshots are cached per region as GeoJSON with a short TTL, absorbing the
// periodic refresh load across engine instances. Submissions pass straight
// through and invalidate the region's entry, so the next refresh sees the
// new claim as soon as the store does.
type CachedStore struct {
	inner TerritoryStore
	rdb   *redis.Client
	ttl   time.Duration
	log   logging.Logger
}

// NewCachedStore wraps inner with a Redis cache. A nil client disables
// caching and returns the inner store's results directly.
func NewCachedStore(inner TerritoryStore, rdb *redis.Client, ttl time.Duration, log logging.Logger) *CachedStore {
	if log == nil {
		log = logging.Noop()
	}
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func regionKey(region geo.BBox) string {
	return fmt.Sprintf("territory:snapshot:%.5f:%.5f:%.5f:%.5f",
		region.MinLat, region.MinLon, region.MaxLat, region.MaxLon)
}

// TerritoriesInRegion serves from cache when possible. Cache failures are
// logged and degrade to the inner store; storage failures surface verbatim.
func (c *CachedStore) TerritoriesInRegion(ctx context.Context, region geo.BBox) ([]*model.Territory, error) {
	if c.rdb == nil {
		return c.inner.TerritoriesInRegion(ctx, region)
	}

	key := regionKey(region)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		ts, decErr := UnmarshalTerritories(raw)
		if decErr == nil {
			return ts, nil
		}
		c.log.Warn(ctx, "snapshot cache entry malformed, refetching", logging.Err(decErr))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn(ctx, "snapshot cache read failed", logging.Err(err))
	}

	ts, err := c.inner.TerritoriesInRegion(ctx, region)
	if err != nil {
		return nil, err
	}

	if encoded, encErr := MarshalTerritories(ts); encErr == nil {
		if setErr := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.log.Warn(ctx, "snapshot cache write failed", logging.Err(setErr))
		}
	}
	return ts, nil
}

// SubmitClaim forwards to the inner store and drops any cached snapshot
// covering the claim.
func (c *CachedStore) SubmitClaim(ctx context.Context, draft *model.TerritoryDraft) (string, error) {
	id, err := c.inner.SubmitClaim(ctx, draft)
	if err != nil {
		return "", err
	}
	if c.rdb != nil {
		// Best effort: entries expire by TTL anyway.
		iter := c.rdb.Scan(ctx, 0, "territory:snapshot:*", 64).Iterator()
		for iter.Next(ctx) {
			if delErr := c.rdb.Del(ctx, iter.Val()).Err(); delErr != nil {
				c.log.Warn(ctx, "snapshot cache invalidation failed", logging.Err(delErr))
			}
		}
	}
	return id, nil
}
