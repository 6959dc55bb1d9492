package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockroom/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultListingKey is the Redis key holding the listing snapshot.
const DefaultListingKey = "listing:products"

// redisOpTimeout bounds every individual Redis call.
const redisOpTimeout = 2 * time.Second

// RedisConfig holds Redis connection details.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisListingCache stores the listing snapshot as JSON under a single key,
// so every instance sharing the Redis server sees the same invalidation.
type RedisListingCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisListingCache creates a new RedisListingCache.
func NewRedisListingCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisListingCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisListingCache{
		client: client,
		key:    DefaultListingKey,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached listing, or ErrMiss.
func (c *RedisListingCache) Get() (*models.Listing, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to get listing from Redis: %w", err)
	}

	var listing models.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode cached listing: %w", err)
	}
	return &listing, nil
}

// Set stores a listing snapshot with the configured TTL.
func (c *RedisListingCache) Set(listing *models.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to encode listing: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store listing in Redis: %w", err)
	}
	return nil
}

// InvalidateListing deletes the snapshot. Failures are logged; the TTL
// bounds how long a stale snapshot can survive.
func (c *RedisListingCache) InvalidateListing() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.logger.Error("Failed to invalidate listing cache", zap.String("key", c.key), zap.Error(err))
	}
}
