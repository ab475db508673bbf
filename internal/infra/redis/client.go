// Package redis caches terminal error descriptors so the presentation layer
// can still answer for a request after its session leaves the orchestrator.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/analyzer/internal/core/domain"
)

// ErrNotFound means no cached descriptor exists for the request id.
var ErrNotFound = errors.New("descriptor not cached")

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// Client wraps Redis operations for the descriptor cache.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func descriptorKey(requestID string) string {
	return fmt.Sprintf("descriptor:%s", requestID)
}

// SetDescriptor stores the final descriptor of a closed session with TTL.
func (c *Client) SetDescriptor(ctx context.Context, requestID string, d domain.ErrorDescriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := c.rdb.Set(ctx, descriptorKey(requestID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set descriptor: %w", err)
	}
	return nil
}

// GetDescriptor fetches a cached descriptor, or ErrNotFound.
func (c *Client) GetDescriptor(ctx context.Context, requestID string) (domain.ErrorDescriptor, error) {
	data, err := c.rdb.Get(ctx, descriptorKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrorDescriptor{}, ErrNotFound
	}
	if err != nil {
		return domain.ErrorDescriptor{}, fmt.Errorf("get descriptor: %w", err)
	}

	var d domain.ErrorDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.ErrorDescriptor{}, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	return d, nil
}
