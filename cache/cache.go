// Package cache holds short-lived vendor lookups (view counts, ENS names) so hot pages do
// not hit third-party APIs on every request. Redis is used when REDIS_URL is set; otherwise
// an in-process TTL map.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/livecast/backend/telemetry"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	Backend() string
}

// New returns a Redis cache for redisURL, or a memory cache when it is empty.
func New(redisURL string) (Cache, error) {
	if redisURL == "" {
		return NewMemory(), nil
	}
	return NewRedis(redisURL)
}

// GetJSON decodes a cached value into v. Misses return (false, nil).
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	raw, err := c.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		telemetry.IncCache(c.Backend(), "miss")
		return false, nil
	}
	if err != nil {
		telemetry.IncCache(c.Backend(), "error")
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		telemetry.IncCache(c.Backend(), "error")
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	telemetry.IncCache(c.Backend(), "hit")
	return true, nil
}

// SetJSON encodes v and stores it for ttl.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}
