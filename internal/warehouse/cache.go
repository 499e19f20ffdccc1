package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cityscope/urbanrisk/internal/domain"
)

const cacheKeyPrefix = "urbanrisk:baseline:"

// Cache is the Redis read-through layer in front of the store. It takes
// redis.Cmdable so tests can substitute a mock client.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache wraps a Redis client with a fixed entry TTL.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// NewRedisClient builds the production Redis client.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func cacheKey(locality string) string {
	return cacheKeyPrefix + locality
}

// Get returns the cached baseline for a locality, or nil on a miss.
// Redis errors other than a miss are returned so the caller can count
// them; a corrupt entry is treated as a miss.
func (c *Cache) Get(ctx context.Context, locality string) (*domain.Baseline, error) {
	raw, err := c.client.Get(ctx, cacheKey(locality)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache read failed for %s: %w", locality, err)
	}

	var baseline domain.Baseline
	if err := json.Unmarshal(raw, &baseline); err != nil {
		return nil, nil
	}
	return &baseline, nil
}

// Set stores a baseline under the locality key.
func (c *Cache) Set(ctx context.Context, baseline *domain.Baseline) error {
	data, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(baseline.Locality), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache write failed for %s: %w", baseline.Locality, err)
	}
	return nil
}
