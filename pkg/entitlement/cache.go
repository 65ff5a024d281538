package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Cache stores entitlement snapshots per tenant.
// Implementations treat backend failures as misses.
type Cache interface {
	Get(ctx context.Context, tenantID uuid.UUID) (Entitlements, bool)
	Set(ctx context.Context, ent Entitlements)
	Delete(ctx context.Context, tenantID uuid.UUID)
}

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 30 * time.Second
)

// MemoryCache is a process-local TTL LRU cache.
type MemoryCache struct {
	lru *cache.LRU[uuid.UUID, Entitlements]
}

// NewMemoryCache creates a cache holding at most size snapshots for ttl each.
// Non-positive values fall back to the defaults.
func NewMemoryCache(size int, ttl time.Duration, opts ...cache.Option) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{lru: cache.New[uuid.UUID, Entitlements](size, ttl, opts...)}
}

func (c *MemoryCache) Get(_ context.Context, tenantID uuid.UUID) (Entitlements, bool) {
	return c.lru.Get(tenantID)
}

func (c *MemoryCache) Set(_ context.Context, ent Entitlements) {
	c.lru.Set(ent.TenantID, ent)
}

func (c *MemoryCache) Delete(_ context.Context, tenantID uuid.UUID) {
	c.lru.Delete(tenantID)
}

// RedisKeyPrefix namespaces snapshot keys.
const RedisKeyPrefix = "billing:entitlements:"

// RedisCache shares snapshots between processes through Redis.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a Redis-backed cache. Panics if client is nil.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, log *slog.Logger) *RedisCache {
	if client == nil {
		panic("entitlement: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: log.With(logger.Component("entitlement_cache")),
	}
}

func (c *RedisCache) Get(ctx context.Context, tenantID uuid.UUID) (Entitlements, bool) {
	var ent Entitlements
	data, err := c.client.Get(ctx, redisKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "entitlement cache read failed",
				logger.TenantID(tenantID), logger.Error(err))
		}
		return ent, false
	}
	if err := json.Unmarshal(data, &ent); err != nil {
		c.logger.WarnContext(ctx, "entitlement cache entry is corrupt",
			logger.TenantID(tenantID), logger.Error(err))
		return ent, false
	}
	return ent, true
}

func (c *RedisCache) Set(ctx context.Context, ent Entitlements) {
	data, err := json.Marshal(ent)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode entitlements",
			logger.TenantID(ent.TenantID), logger.Error(err))
		return
	}
	ttl := c.ttl
	if ent.AccessUntil != nil {
		ttl = min(ttl, time.Until(*ent.AccessUntil))
		if ttl <= 0 {
			return
		}
	}
	if err := c.client.Set(ctx, redisKey(ent.TenantID), data, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "entitlement cache write failed",
			logger.TenantID(ent.TenantID), logger.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, tenantID uuid.UUID) {
	if err := c.client.Del(ctx, redisKey(tenantID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "entitlement cache delete failed",
			logger.TenantID(tenantID), logger.Error(err))
	}
}

func redisKey(tenantID uuid.UUID) string {
	return RedisKeyPrefix + tenantID.String()
}

type noopCache struct{}

func (noopCache) Get(context.Context, uuid.UUID) (Entitlements, bool) { return Entitlements{}, false }
func (noopCache) Set(context.Context, Entitlements)                   {}
func (noopCache) Delete(context.Context, uuid.UUID)                   {}

// CacheInvalidator adapts a Cache to subscription.Invalidator, so the service can
// be built before the gate that shares the cache.
type CacheInvalidator struct {
	Cache Cache
}

func (c CacheInvalidator) Invalidate(ctx context.Context, tenantID uuid.UUID) {
	c.Cache.Delete(ctx, tenantID)
}
