// Package redis provides the Redis client and caching operations for the
// vertad services. It caches computed next-work targets per chain tip and
// tracks the last published height so restarts do not replay events.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the difficulty services
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration
type Config struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a new Redis client
func NewClient(cfg *Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.MaxRetries = cfg.MaxRetries
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Target caching

// CachedTarget is the cached result of a next-work computation for a tip.
type CachedTarget struct {
	Height     int64   `json:"height"`
	Bits       uint32  `json:"bits"`
	Difficulty float64 `json:"difficulty"`
	IsRetarget bool    `json:"is_retarget"`
}

// SetNextTarget caches the computed target for a tip hash
func (c *Client) SetNextTarget(ctx context.Context, tipHash string, target *CachedTarget, expiration time.Duration) error {
	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal cached target: %w", err)
	}

	key := fmt.Sprintf("target:%s", tipHash)
	if err := c.rdb.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cached target: %w", err)
	}

	return nil
}

// GetNextTarget retrieves the cached target for a tip hash; found reports
// whether the cache held an entry.
func (c *Client) GetNextTarget(ctx context.Context, tipHash string) (*CachedTarget, bool, error) {
	key := fmt.Sprintf("target:%s", tipHash)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached target: %w", err)
	}

	target := &CachedTarget{}
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached target: %w", err)
	}

	return target, true, nil
}

// Publish bookkeeping

// SetLastPublishedHeight records the highest height whose target update
// has been published
func (c *Client) SetLastPublishedHeight(ctx context.Context, network string, height int64) error {
	key := fmt.Sprintf("published:%s", network)
	if err := c.rdb.Set(ctx, key, height, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last published height: %w", err)
	}
	return nil
}

// GetLastPublishedHeight returns the highest published height, or -1 when
// nothing has been published yet
func (c *Client) GetLastPublishedHeight(ctx context.Context, network string) (int64, error) {
	key := fmt.Sprintf("published:%s", network)
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return -1, nil
		}
		return -1, fmt.Errorf("failed to get last published height: %w", err)
	}

	height, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("corrupt last published height %q: %w", val, err)
	}
	return height, nil
}
