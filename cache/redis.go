package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by writes when no Redis connection is available
var ErrDisabled = errors.New("redis client not initialized")

// ErrMiss is returned by Get when the key does not exist
var ErrMiss = redis.Nil

// scanBatch bounds how many keys one SCAN round trip returns
const scanBatch = 500

// RedisClient wraps redis.Client. A nil *RedisClient is a valid, disabled client.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and returns nil when it is unreachable
func NewRedisClient(host, port, password string, db int) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Failed to connect to Redis at %s: %v", addr, err)
		_ = client.Close()
		return nil
	}

	log.Printf("✅ Connected to Redis at %s", addr)
	return &RedisClient{client: client}
}

// Enabled reports whether the client has a live connection
func (r *RedisClient) Enabled() bool {
	return r != nil && r.client != nil
}

// Set stores a JSON-encoded value with expiration
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !r.Enabled() {
		return ErrDisabled
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, jsonBytes, expiration).Err()
}

// Get decodes a JSON value into dest
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	if !r.Enabled() {
		return ErrDisabled
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(val, dest)
}

// Delete removes a key
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if !r.Enabled() {
		return ErrDisabled
	}
	return r.client.Del(ctx, key).Err()
}

// DeletePrefix removes every key starting with prefix and returns how many were deleted
func (r *RedisClient) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Exists checks if a key exists
func (r *RedisClient) Exists(ctx context.Context, key string) bool {
	if !r.Enabled() {
		return false
	}

	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false
	}

	return result > 0
}

// Publish sends a JSON message to a channel
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if !r.Enabled() {
		return ErrDisabled
	}

	jsonBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, channel, jsonBytes).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.Enabled() {
		return r.client.Close()
	}
	return nil
}
