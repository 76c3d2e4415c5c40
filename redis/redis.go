package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps the redis client. Every method tolerates a nil client so
// the service keeps working, just slower, when redis is down.
type Cache struct {
	client *redis.Client
}

// Init connects to redis; a failed ping degrades to a no-op cache
func Init(address string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr: address,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		log.Println("Redis not available. Running without Redis.")
		return &Cache{client: nil}
	}

	log.Println("Redis connected successfully.")
	return &Cache{client: client}
}

// NewCache wraps an existing client (used by tests with miniredis)
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get loads a JSON value into dest; found is false on miss
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a JSON value with a TTL; failures are logged, not surfaced
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache marshal failed for %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("cache set failed for %s: %v", key, err)
	}
}

// GetVersion reads a version counter; 0 when missing or unavailable
func (c *Cache) GetVersion(ctx context.Context, key string) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	v, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return v
}

// IncrementVersion bumps a version counter, so any composite cache key
// built from it stops matching
func (c *Cache) IncrementVersion(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, key).Err(); err != nil {
		log.Printf("cache version bump failed for %s: %v", key, err)
	}
}

// TryLock takes a best-effort advisory lock. The second return releases
// it; acquired is true without redis so single-process deployments keep
// their in-process coordination.
func (c *Cache) TryLock(ctx context.Context, key string, ttl time.Duration) (acquired bool, release func()) {
	if c == nil || c.client == nil {
		return true, func() {}
	}
	ok, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil || !ok {
		return false, func() {}
	}
	return true, func() {
		c.client.Del(context.Background(), key)
	}
}
