package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store backed by go-cache.
type MemoryStore struct {
	c *gocache.Cache
}

func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryStore{c: gocache.New(defaultTTL, cleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return false, nil
	}

	b, ok := v.([]byte)
	if !ok {
		return false, fmt.Errorf("cache: unexpected value type %T for key %q", v, key)
	}
	if err := decode(b, dst); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := encode(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.c.Set(key, b, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}
