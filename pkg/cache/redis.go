package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/webauth/pkg/circuitbreaker"
)

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// RedisStore is a Store shared between instances. Values are JSON encoded.
type RedisStore struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	prefix string
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:             "redis-cache",
			FailureThreshold: 5,
			Interval:         10 * time.Second,
			Timeout:          5 * time.Second,
		}),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	var b []byte
	found := false

	err := s.cb.Execute(func() error {
		v, err := s.client.Get(ctx, s.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		b, found = v, true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cache: redis get %q: %w", key, err)
	}
	if !found {
		return false, nil
	}

	if err := decode(b, dst); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := encode(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	err = s.cb.Execute(func() error {
		return s.client.Set(ctx, s.key(key), b, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("cache: redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := s.cb.Execute(func() error {
		return s.client.Del(ctx, s.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("cache: redis delete %q: %w", key, err)
	}
	return nil
}

// Ping checks the connection, for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
