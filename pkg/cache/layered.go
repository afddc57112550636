package cache

import (
	"context"
	"time"
)

// LayeredCache puts a small memory L1 in front of a durable L2.
// Sets live only in L2.
type LayeredCache struct {
	memCache *MemoryCache
	durable  Service
	fillTTL  time.Duration
}

// NewLayeredCache creates a layered cache over durable.
func NewLayeredCache(durable Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		FillTTL:       time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		memCache: NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		durable:  durable,
		fillTTL:  cfg.FillTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// Write-through: durable first, then memory
	if err := lc.durable.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, value, lc.l1TTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memCache.Get(ctx, key, dest); err == nil {
		return nil
	}

	if err := lc.durable.Get(ctx, key, dest); err != nil {
		return err
	}

	_ = lc.memCache.Set(ctx, key, dest, lc.fillTTL)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memCache.Delete(ctx, keys...)
	return lc.durable.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.memCache.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.durable.Exists(ctx, keys...)
}

func (lc *LayeredCache) SAdd(ctx context.Context, key string, members ...string) error {
	return lc.durable.SAdd(ctx, key, members...)
}

func (lc *LayeredCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return lc.durable.SMembers(ctx, key)
}

func (lc *LayeredCache) SRem(ctx context.Context, key string, members ...string) error {
	return lc.durable.SRem(ctx, key, members...)
}

func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration <= 0 || expiration > lc.fillTTL {
		return lc.fillTTL
	}
	return expiration
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	return lc.durable.Close()
}
