package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// StoreWarehouseTTL bounds how long a cached store binding is trusted.
const StoreWarehouseTTL = 10 * time.Minute

// StoreLookup reads a store's warehouse from the source of truth.
type StoreLookup interface {
	StoreWarehouseID(ctx context.Context, storeID int64) (int64, error)
}

// Registry answers store to warehouse lookups from Redis, falling back to the
// database. Concurrent misses for one store share a single load.
type Registry struct {
	lookup StoreLookup
	client *redis.Client
	logger *slog.Logger
	group  singleflight.Group
	ttl    time.Duration
}

// NewRegistry builds a Registry. A nil client disables caching.
func NewRegistry(lookup StoreLookup, client *redis.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{lookup: lookup, client: client, logger: logger, ttl: StoreWarehouseTTL}
}

// StoreWarehouse returns the fulfilment warehouse bound to a store.
func (r *Registry) StoreWarehouse(ctx context.Context, storeID int64) (int64, error) {
	key := shared.StoreWarehouseCacheKey(storeID)
	if r.client != nil {
		id, err := r.client.Get(ctx, key).Int64()
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "registry cache read failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	v, err, _ := r.group.Do(strconv.FormatInt(storeID, 10), func() (any, error) {
		id, err := r.lookup.StoreWarehouseID(ctx, storeID)
		if err != nil {
			return int64(0), err
		}
		if r.client != nil {
			if err := r.client.Set(ctx, key, id, r.ttl).Err(); err != nil {
				r.logger.WarnContext(ctx, "registry cache write failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Invalidate drops the cached binding for a store.
func (r *Registry) Invalidate(ctx context.Context, storeID int64) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Del(ctx, shared.StoreWarehouseCacheKey(storeID)).Err(); err != nil {
		r.logger.WarnContext(ctx, "registry cache invalidate failed", slog.Int64("store_id", storeID), slog.Any("error", err))
	}
}
