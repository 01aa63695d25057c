package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// redisCache shares resolved sets between replicas. Freshness is Redis' native TTL.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    logrus.FieldLogger
}

// NewRedisCache creates a Redis-backed resolution cache
func NewRedisCache(cfg *config.CacheConfig, log logrus.FieldLogger) (ResolutionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCacheWithClient(client, cfg, log), nil
}

func newRedisCacheWithClient(client *redis.Client, cfg *config.CacheConfig, log logrus.FieldLogger) *redisCache {
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	prefix := cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = "authz"
	}
	return &redisCache{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		log:    log,
	}
}

func (c *redisCache) key(userID uuid.UUID) string {
	return fmt.Sprintf("%s:perms:%s", c.prefix, userID)
}

// Get treats any Redis failure as a miss so resolution falls through to the store
func (c *redisCache) Get(ctx context.Context, userID uuid.UUID) (domain.PermissionSet, bool) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PermissionSet{}, false
	}
	if err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("redis cache read failed")
		return domain.PermissionSet{}, false
	}

	var set domain.PermissionSet
	if err := json.Unmarshal(data, &set); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("discarding undecodable cache entry")
		c.client.Del(ctx, c.key(userID))
		return domain.PermissionSet{}, false
	}
	return set, true
}

func (c *redisCache) Set(ctx context.Context, userID uuid.UUID, set domain.PermissionSet) {
	data, err := json.Marshal(set)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("redis cache write failed")
	}
}

func (c *redisCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Error("redis cache invalidation failed")
	}
}

// Clear removes every entry under this cache's prefix
func (c *redisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+":perms:*", 100).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).Error("redis cache clear failed")
	}
}

// Close closes the Redis connection
func (c *redisCache) Close() error {
	return c.client.Close()
}
