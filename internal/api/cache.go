// Package api serves the derived tables over HTTP: daily brand aggregates,
// trend topics, competitive rankings, and pipeline run summaries. Responses
// are cached in Redis under an "api:" prefix; the pipeline invalidates the
// prefix after every run.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/brandintel/sentiment-platform/pkg/config"
	"github.com/brandintel/sentiment-platform/pkg/metrics"
	pkgredis "github.com/brandintel/sentiment-platform/pkg/redis"
)

const keyPrefix = "api:"

// ResponseCache caches marshaled API responses in Redis. Concurrent misses
// for the same key collapse into one database query via singleflight.
type ResponseCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResponseCache creates a ResponseCache.
func NewResponseCache(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *ResponseCache {
	return &ResponseCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "response-cache"),
	}
}

// GetOrCompute returns the cached response for key, or computes, caches, and
// returns it. The boolean reports whether the response came from cache. Cache
// failures degrade to computing; they never fail the request.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, compute func() (any, error)) ([]byte, bool, error) {
	redisKey := c.buildKey(key)

	if data, ok := c.get(ctx, redisKey); ok {
		return data, true, nil
	}

	val, err, _ := c.group.Do(redisKey, func() (interface{}, error) {
		if data, ok := c.get(ctx, redisKey); ok {
			return data, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshaling response: %w", err)
		}
		if err := c.client.Set(ctx, redisKey, data, c.cfg.CacheTTL); err != nil {
			c.logger.Error("cache set failed", "key", redisKey, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), false, nil
}

func (c *ResponseCache) get(ctx context.Context, redisKey string) ([]byte, bool) {
	data, err := c.client.Get(ctx, redisKey)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", redisKey, "error", err)
		}
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.metrics.CacheHitsTotal.Inc()
	return []byte(data), true
}

func (c *ResponseCache) buildKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
