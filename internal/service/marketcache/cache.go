// Package marketcache keeps the last known MarketData per instrument in a memory tier
// backed by a durable store, and reports stale values instead of dropping them.
package marketcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"
)

// Freshness tells whether a cached value is still within its TTL.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// Entry is the value persisted in the durable tier.
type Entry struct {
	Data      models.MarketData `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// DefaultTTLs per category. Categories absent here use Config.DefaultTTL.
var DefaultTTLs = map[models.Category]time.Duration{
	models.CategorySynthetic:   10 * time.Second,
	models.CategoryCrypto:      30 * time.Second,
	models.CategoryStocks:      time.Minute,
	models.CategoryForex:       5 * time.Minute,
	models.CategoryIndices:     5 * time.Minute,
	models.CategoryCommodities: 5 * time.Minute,
}

type Config struct {
	Prefix        string
	DefaultTTL    time.Duration
	TTL           map[models.Category]time.Duration
	Grace         time.Duration
	SweepInterval time.Duration
}

// Option configures Cache.
type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.log = l.Component("marketcache") }
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is the market data cache. store is usually a cache.LayeredCache so reads hit memory first.
type Cache struct {
	store    cache.Service
	cfg      Config
	indexKey string
	now      func() time.Time
	log      *logger.Logger
	metrics  repository.Metrics
}

func New(store cache.Service, cfg Config, opts ...Option) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 7 * 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 24 * time.Hour
	}
	ttl := make(map[models.Category]time.Duration, len(DefaultTTLs)+len(cfg.TTL))
	for k, v := range DefaultTTLs {
		ttl[k] = v
	}
	for k, v := range cfg.TTL {
		ttl[k] = v
	}
	cfg.TTL = ttl

	c := &Cache{
		store:    store,
		cfg:      cfg,
		indexKey: cfg.Prefix + "index",
		now:      time.Now,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL is the configured lifetime for category.
func (c *Cache) TTL(category models.Category) time.Duration {
	if d, ok := c.cfg.TTL[category]; ok {
		return d
	}
	return c.cfg.DefaultTTL
}

// Key is the durable key for an instrument.
func (c *Cache) Key(symbol string, category models.Category) string {
	return c.cfg.Prefix + string(category) + "_" + strings.ToLower(strings.TrimSpace(symbol))
}

// Get returns the cached value. A value past its TTL comes back with IsRealTime=false and
// LastUpdated set to when it was cached.
func (c *Cache) Get(ctx context.Context, symbol string, category models.Category) (models.MarketData, Freshness, bool) {
	var e Entry
	if err := c.store.Get(ctx, c.Key(symbol, category), &e); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Warn("cache read failed", logger.String("symbol", symbol), logger.Error(err))
		}
		c.record("miss")
		return models.MarketData{}, Fresh, false
	}

	if !c.now().After(e.ExpiresAt) {
		c.record("hit")
		return e.Data, Fresh, true
	}

	c.record("stale")
	data := e.Data
	data.IsRealTime = false
	data.LastUpdated = e.Timestamp
	return data, Stale, true
}

// Put writes data with ttl, or with the category TTL when ttl <= 0.
func (c *Cache) Put(ctx context.Context, symbol string, category models.Category, data models.MarketData, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.TTL(category)
	}
	now := c.now()
	e := Entry{Data: data, Timestamp: now, ExpiresAt: now.Add(ttl)}
	key := c.Key(symbol, category)

	// kept until the sweep horizon so stale reads still find it
	if err := c.store.Set(ctx, key, e, ttl+c.cfg.Grace); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	if err := c.store.SAdd(ctx, c.indexKey, key); err != nil {
		return fmt.Errorf("cache index %s: %w", key, err)
	}
	return nil
}

// Sweep removes entries whose ExpiresAt is more than the grace window in the past,
// and index members whose entry is already gone.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.store.SMembers(ctx, c.indexKey)
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}

	now := c.now()
	var dead []string
	for _, key := range keys {
		var e Entry
		err := c.store.Get(ctx, key, &e)
		switch {
		case errors.Is(err, cache.ErrCacheMiss):
			dead = append(dead, key)
		case err != nil:
			// undecodable payloads are unusable
			c.log.Warn("cache sweep read failed", logger.String("key", key), logger.Error(err))
			dead = append(dead, key)
		case now.After(e.ExpiresAt.Add(c.cfg.Grace)):
			dead = append(dead, key)
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}

	if err := c.store.Delete(ctx, dead...); err != nil {
		return 0, fmt.Errorf("cache sweep delete: %w", err)
	}
	if err := c.store.SRem(ctx, c.indexKey, dead...); err != nil {
		return 0, fmt.Errorf("cache sweep index: %w", err)
	}
	return len(dead), nil
}

// Run sweeps every SweepInterval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	t := time.NewTicker(c.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.Sweep(ctx)
			if err != nil {
				c.log.Warn("cache sweep failed", logger.Error(err))
				continue
			}
			if n > 0 {
				c.log.Info("cache sweep", logger.Int("removed", n))
			}
		}
	}
}

func (c *Cache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(result)
	}
}
