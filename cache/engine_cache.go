package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"retail-analytics/metrics"
)

const keyPrefix = "analytics"

// EngineCache stores engine outputs keyed by dataset fingerprint, engine and
// parameters. Entries for a fingerprint are dropped together when the
// underlying data changes.
type EngineCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewEngineCache creates a cache over redis; a nil client disables it
func NewEngineCache(redis *RedisClient, ttl time.Duration) *EngineCache {
	return &EngineCache{
		redis: redis,
		ttl:   ttl,
	}
}

// Enabled reports whether lookups can ever hit
func (c *EngineCache) Enabled() bool {
	return c != nil && c.redis.Enabled()
}

// Key builds analytics:<fingerprint>:<engine>:<hash of params>
func Key(engine, fingerprint string, params interface{}) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, fingerprint, engine, ParamsHash(params))
}

// Get decodes a cached result into dest and reports whether it was found
func (c *EngineCache) Get(ctx context.Context, engine, fingerprint string, params, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}

	err := c.redis.Get(ctx, Key(engine, fingerprint, params), dest)
	hit := err == nil
	metrics.CacheResult(engine, hit)
	if err != nil && err != ErrMiss {
		log.Printf("⚠️  Cache read failed for %s: %v", engine, err)
	}
	return hit
}

// Set stores an engine result; failures are logged, never returned
func (c *EngineCache) Set(ctx context.Context, engine, fingerprint string, params, value interface{}) {
	if !c.Enabled() {
		return
	}
	if err := c.redis.Set(ctx, Key(engine, fingerprint, params), value, c.ttl); err != nil {
		log.Printf("⚠️  Cache write failed for %s: %v", engine, err)
	}
}

// Invalidate drops every cached engine result for a fingerprint
func (c *EngineCache) Invalidate(ctx context.Context, fingerprint string) error {
	if !c.Enabled() || fingerprint == "" {
		return nil
	}

	n, err := c.redis.DeletePrefix(ctx, fmt.Sprintf("%s:%s:", keyPrefix, fingerprint))
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", fingerprint, err)
	}
	if n > 0 {
		log.Printf("🔄 Invalidated %d cached results for dataset %s", n, fingerprint)
	}
	return nil
}

// ParamsHash creates a short hash of the parameters so distinct inputs get distinct keys
func ParamsHash(params interface{}) string {
	jsonData, _ := json.Marshal(params)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf("%x", hash[:8])
}
