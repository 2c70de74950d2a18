// Package cache handles Redis caching of detection results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/models"
)

// Common errors
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Cache defines the interface for caching operations.
type Cache interface {
	// Get retrieves a value from the cache.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Ping checks if the cache is healthy.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client.
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	// Verify connectivity
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from the cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set stores a value in the cache with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete removes a value from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	err := c.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Ping checks if the cache is healthy.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the cache connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client for advanced operations.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// DetectionCacher defines the interface for detection result caching.
// This interface enables easy mocking in tests.
type DetectionCacher interface {
	Get(ctx context.Context, text string, categories []string) (*models.DetectionResult, error)
	Set(ctx context.Context, text string, categories []string, result *models.DetectionResult) error
	Ping(ctx context.Context) error
}

// Ensure DetectionCache implements DetectionCacher
var _ DetectionCacher = (*DetectionCache)(nil)

// DetectionCache caches detection results keyed by a digest of the input
// text and the selected categories. Raw input text never touches Redis.
type DetectionCache struct {
	cache      Cache
	keyPrefix  string
	defaultTTL time.Duration
}

// NewDetectionCache creates a detection-result cache.
func NewDetectionCache(cache Cache, keyPrefix string, defaultTTL time.Duration) *DetectionCache {
	if keyPrefix == "" {
		keyPrefix = "detection:"
	}
	if defaultTTL == 0 {
		defaultTTL = time.Hour
	}
	return &DetectionCache{
		cache:      cache,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a cached detection result for the given input.
func (c *DetectionCache) Get(ctx context.Context, text string, categories []string) (*models.DetectionResult, error) {
	data, err := c.cache.Get(ctx, c.key(text, categories))
	if err != nil {
		return nil, err
	}

	var result models.DetectionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached detection: %w", err)
	}

	return &result, nil
}

// Set stores a detection result under the input digest.
func (c *DetectionCache) Set(ctx context.Context, text string, categories []string, result *models.DetectionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal detection result: %w", err)
	}

	return c.cache.Set(ctx, c.key(text, categories), data, c.defaultTTL)
}

// Ping checks if the cache is healthy.
func (c *DetectionCache) Ping(ctx context.Context) error {
	return c.cache.Ping(ctx)
}

// key digests the input text and the category selection. Category order
// does not affect the detection outcome, so the selection is sorted before
// hashing.
func (c *DetectionCache) key(text string, categories []string) string {
	sorted := make([]string, len(categories))
	copy(sorted, categories)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	return c.keyPrefix + hex.EncodeToString(h.Sum(nil))
}
