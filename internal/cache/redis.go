// Package cache stores computed match results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lender-match/internal/model"
)

// DefaultTTL applies when NewRedis is given a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// RedisCache implements matching.ResultCache on top of Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis server at url (redis://host:port/db).
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	c := NewFromClient(redis.NewClient(opts), ttl)
	if err := c.Ping(ctx); err != nil {
		c.Close() //nolint:errcheck
		return nil, err
	}
	return c, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached results for key. A miss is (nil, false, nil).
func (c *RedisCache) Get(ctx context.Context, key string) ([]model.MatchResult, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: get %s", key)
	}

	var results []model.MatchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, eris.Wrapf(err, "cache: decode %s", key)
	}
	return results, true, nil
}

// Set stores results under key with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, results []model.MatchResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "cache: encode results")
	}
	return eris.Wrapf(c.client.Set(ctx, key, data, c.ttl).Err(), "cache: set %s", key)
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return eris.Wrap(c.client.Ping(ctx).Err(), "cache: ping")
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
