// Package cache provides a Redis-backed read cache for activation lookups.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisActivationCache caches activation state per (user, module) pair.
// Keys are namespaced: activation:user:{user_id}:module:{module_id}
type RedisActivationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisActivationCache creates a new cache with the given TTL.
func NewRedisActivationCache(client *redis.Client, ttl time.Duration) *RedisActivationCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisActivationCache{client: client, ttl: ttl}
}

func key(userID uuid.UUID, moduleID string) string {
	return fmt.Sprintf("activation:user:%s:module:%s", userID, moduleID)
}

// GetActive returns the cached state. The second return value reports
// whether the key was present.
func (c *RedisActivationCache) GetActive(ctx context.Context, userID uuid.UUID, moduleID string) (bool, bool, error) {
	val, err := c.client.Get(ctx, key(userID, moduleID)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

// SetActive stores the state with the configured TTL.
func (c *RedisActivationCache) SetActive(ctx context.Context, userID uuid.UUID, moduleID string, active bool) error {
	val := "0"
	if active {
		val = "1"
	}
	return c.client.Set(ctx, key(userID, moduleID), val, c.ttl).Err()
}

// Invalidate removes the cached state for the pair.
func (c *RedisActivationCache) Invalidate(ctx context.Context, userID uuid.UUID, moduleID string) error {
	return c.client.Del(ctx, key(userID, moduleID)).Err()
}
