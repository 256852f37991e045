package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache adapts the Redis client to the mapping store's cache port.
type Cache struct {
	client    *Client
	keyPrefix string
}

// NewCache creates a Cache with the given key prefix
func NewCache(client *Client, keyPrefix string) *Cache {
	return &Cache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the cached value and whether the key was present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.keyPrefix+key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.keyPrefix+key, value, ttl)
}

// Invalidate removes a key. Missing keys are not an error.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.keyPrefix+key)
}
