package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sentinel-rbac/sentinel/pkg/observability"
)

// Cache caches resolved permission sets per user. It layers a small
// in-process LRU in front of Redis; either layer may be absent. Cache
// failures are logged and treated as misses so resolution falls back
// to the database.
type Cache struct {
	redis  *redis.Client
	local  *lru.LRU[string, []string]
	ttl    time.Duration
	logger *observability.Logger
}

// NewCache creates a permission cache. redisClient may be nil to run
// with the in-process layer only.
func NewCache(redisClient *redis.Client, l1Size int, ttl time.Duration, logger *observability.Logger) *Cache {
	if l1Size <= 0 {
		l1Size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{
		redis:  redisClient,
		local:  lru.NewLRU[string, []string](l1Size, nil, ttl),
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("sentinel:perms:%d", userID)
}

// Get returns the cached permission set for a user, if present
func (c *Cache) Get(ctx context.Context, userID int64) ([]string, bool) {
	key := cacheKey(userID)

	if codes, ok := c.local.Get(key); ok {
		return codes, true
	}

	if c.redis == nil {
		return nil, false
	}

	raw, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("permission cache read failed")
		return nil, false
	}

	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		c.logger.WithError(err).Warn("permission cache entry corrupt")
		return nil, false
	}

	c.local.Add(key, codes)
	return codes, true
}

// Set stores the permission set for a user
func (c *Cache) Set(ctx context.Context, userID int64, codes []string) {
	key := cacheKey(userID)
	c.local.Add(key, codes)

	if c.redis == nil {
		return
	}

	raw, err := json.Marshal(codes)
	if err != nil {
		c.logger.WithError(err).Warn("failed to encode permission cache entry")
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("permission cache write failed")
	}
}

// InvalidateUser drops the cached permission set for one user
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) {
	key := cacheKey(userID)
	c.local.Remove(key)

	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.WithError(err).Warn("permission cache invalidation failed")
	}
}

// InvalidateUsers drops the cached permission sets for several users
func (c *Cache) InvalidateUsers(ctx context.Context, userIDs []int64) {
	for _, userID := range userIDs {
		c.InvalidateUser(ctx, userID)
	}
}
