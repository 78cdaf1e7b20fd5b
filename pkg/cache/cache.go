// Package cache stores small JSON-encodable values, such as application
// records and password rules fetched from the accounts API, for a bounded
// time.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownDriver is returned by New for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown cache driver")

// Store is a key/value cache. Values are copied in and out; callers never
// share memory with the cache.
type Store interface {
	// Get decodes the value stored under key into dst and reports whether
	// it was present.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	// Set stores value under key. A zero ttl uses the store default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a Store.
type Config struct {
	Driver          string        `mapstructure:"driver"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// New builds the Store named by cfg.Driver ("memory" or "redis").
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.TTL, cfg.CleanupInterval), nil
	case "redis":
		if cfg.Redis.TTL == 0 {
			cfg.Redis.TTL = cfg.TTL
		}
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, errors.Join(ErrUnknownDriver, errors.New(cfg.Driver))
	}
}
