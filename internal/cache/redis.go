// Package cache stores finished background-removal results in Redis, keyed by
// the input image bytes and the requested background.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SyedDaiam9101/rmbg-service/internal/segmentation"
)

const keyPrefix = "rmbg:result:"

// Entry is a cached result. Image holds PNG bytes.
type Entry struct {
	Image      []byte               `json:"image"`
	Background string               `json:"background"`
	Metrics    segmentation.Metrics `json:"metrics"`
}

// Cache wraps a Redis client for result storage. A nil *Cache is a valid,
// always-missing cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new Cache connected to addr and verifies the connection
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Key derives the cache key for an input image and background hex string
func Key(image []byte, background string) string {
	sum := sha256.Sum256(image)
	return keyPrefix + hex.EncodeToString(sum[:]) + ":" + background
}

// Get returns the cached entry, or nil on a miss
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &entry, nil
}

// Set stores an entry with the configured TTL
func (c *Cache) Set(ctx context.Context, key string, entry *Entry) error {
	if c == nil || c.client == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache client is nil")
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}
