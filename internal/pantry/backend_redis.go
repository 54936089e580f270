package pantry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisBackend implements the Backend interface using a single Redis string key.
// Mutual exclusion is provided by the Store, so only one process should write.
type RedisBackend struct {
	rdb *redis.Client
	key string
}

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisBackend{rdb: rdb, key: cfg.KeyPrefix + HistoryKey}, nil
}

// Load reads the collection
func (r *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading redis key %s: %w", r.key, err)
	}
	return data, nil
}

// Save writes the collection
func (r *RedisBackend) Save(ctx context.Context, data []byte) error {
	if err := r.rdb.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing redis key %s: %w", r.key, err)
	}
	return nil
}

// Remove deletes the collection
func (r *RedisBackend) Remove(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("deleting redis key %s: %w", r.key, err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
