// Package redis wraps the shared Redis client used for rate limiting,
// per-key work locks, and progress pub/sub.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps Redis operations for the pipeline. A single instance is
// constructed at process start and shared by reference.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func rateKey(scope, key string) string {
	return fmt.Sprintf("rate:%s:%s", scope, key)
}

func workLockKey(key string) string {
	return fmt.Sprintf("worklock:%s", key)
}

func progressChannel(videoID string) string {
	return fmt.Sprintf("progress:%s", videoID)
}

// Allow increments the counter for (scope, key) and reports whether it
// is still within limit for the window. Counters are scoped per key,
// not global, so one user's burst never throttles another.
func (c *Client) Allow(
	ctx context.Context,
	scope, key string,
	limit int,
	window time.Duration,
) (bool, error) {
	k := rateKey(scope, key)

	count, err := c.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr failed: %w", err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("expire failed: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// AcquireLock attempts to take the work lock for a resource key.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, workLockKey(key), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases the work lock for a resource key.
func (c *Client) ReleaseLock(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, workLockKey(key)).Err()
}

// RefreshLock extends the TTL of a held work lock.
func (c *Client) RefreshLock(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, workLockKey(key), ttl).Err()
}

// Publish sends a payload on a video's progress channel. Fire and
// observe: subscribers may or may not be listening.
func (c *Client) Publish(ctx context.Context, videoID string, payload []byte) error {
	return c.rdb.Publish(ctx, progressChannel(videoID), payload).Err()
}

// Health checks connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
