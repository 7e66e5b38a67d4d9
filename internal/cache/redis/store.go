// Package redis is a cache.Store backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dvloznov/moneychat-nlp/internal/cache"
)

// DefaultURL is used when no URL is configured.
const DefaultURL = "redis://localhost:6379"

// Store implements cache.Store on a Redis client.
type Store struct {
	client *goredis.Client
}

// New connects to the Redis server at url.
// The connection is verified with PING so misconfiguration surfaces at startup.
func New(ctx context.Context, url string) (*Store, error) {
	if url == "" {
		url = DefaultURL
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.New: parse URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis.Get: %w", err)
	}
	return val, true, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis.Set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ cache.Store = (*Store)(nil)
