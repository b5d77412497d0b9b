// Package cache stores normalized search results in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/catalogsearch/internal/domain"
)

const keyPrefix = "search:result:"

// ResultCache caches search results keyed by the compiled request.
// Concurrent misses on the same key share one computation.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Redis-backed result cache.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ResultCache {
	return &ResultCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "result-cache")),
	}
}

// Key derives a cache key from the parts that fully determine a result.
func Key(parts ...any) (string, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("build cache key: %w", err)
	}
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16]), nil
}

// Get returns the cached result for key. Redis failures count as misses.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.Result, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.ErrorContext(ctx, "cache get failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		c.misses.Add(1)
		return nil, false
	}
	var res domain.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.ErrorContext(ctx, "cache unmarshal failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &res, true
}

// Set stores res under key with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, res *domain.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.ErrorContext(ctx, "cache marshal failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.ErrorContext(ctx, "cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// GetOrCompute returns the cached result for key or computes and stores it.
// The boolean reports a cache hit. Errors from compute are not cached.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(context.Context) (*domain.Result, error),
) (*domain.Result, bool, error) {
	if res, ok := c.Get(ctx, key); ok {
		return res, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.Get(ctx, key); ok {
			return res, nil
		}
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*domain.Result), false, nil
}

// Invalidate drops every cached result.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	var deleted int64
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	c.logger.InfoContext(ctx, "cache invalidated", slog.Int64("keys_deleted", deleted))
	return nil
}

// Ping checks the Redis connection.
func (c *ResultCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Stats returns the hit and miss counters.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
