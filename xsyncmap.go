package cache

import (
	"context"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/puzpuzpuz/xsync"
)

var _ Store = &XSyncMap{}

// XSyncMap is a Store backed by xsync.Map, a lock-free concurrent hash map
// optimized for read-heavy workloads. Unlike RWMutexMap and ShardedMap it
// never takes a single mutex for reads, trading that for a heavier Write
// path; benchmark against the other Store implementations before picking it.
type XSyncMap struct {
	data *xsync.Map

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewXSyncMap creates an instance of XSyncMap with optional configuration.
func NewXSyncMap(cfg ...MemoryConfig) *XSyncMap {
	config := MemoryConfig{}
	if len(cfg) > 0 {
		config = cfg[0]
	}

	if config.DefaultExpiration.IsEternal() {
		config.DefaultExpiration = MustExpiration(5*time.Minute, 0)
	}

	if config.Logger == nil {
		config.Logger = ctxd.NoOpLogger{}
	}

	if config.Stats == nil {
		config.Stats = stats.NoOp{}
	}

	return &XSyncMap{
		data:   xsync.NewMap(),
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
	}
}

// Read gets value.
func (c *XSyncMap) Read(ctx context.Context, key string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrCacheItemNotFound
	}

	raw, found := c.data.Load(key)
	if !found {
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, ErrCacheItemNotFound
	}

	cacheEntry := raw.(entry)
	now := time.Now()

	if cacheEntry.isExpired(now) {
		c.data.Delete(key)

		c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)

		return cacheEntry.Val, errExpired{entry: cacheEntry}
	}

	cacheEntry.touch(now)
	c.data.Store(key, cacheEntry)

	c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)

	return cacheEntry.Val, nil
}

// Write sets value.
func (c *XSyncMap) Write(ctx context.Context, key string, v interface{}, exp Expiration) error {
	if exp.IsEternal() {
		exp = c.config.DefaultExpiration
	}

	c.data.Store(key, newEntry(v, exp, time.Now()))

	c.log.Debug(ctx, "wrote to cache", "name", c.config.Name, "key", key, "value", v, "expiration", exp)
	c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)

	return nil
}

// Remove deletes key and returns its prior value, if any.
func (c *XSyncMap) Remove(ctx context.Context, key string) (interface{}, error) {
	raw, found := c.data.Load(key)
	if !found {
		return nil, ErrCacheItemNotFound
	}

	c.data.Delete(key)

	return raw.(entry).Val, nil
}

// Clear deletes all entries.
func (c *XSyncMap) Clear(ctx context.Context) error {
	c.data.Range(func(key string, _ interface{}) bool {
		c.data.Delete(key)

		return true
	})

	return nil
}

// Keys lists the keys currently held, expired or not.
func (c *XSyncMap) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, c.data.Size())

	c.data.Range(func(key string, _ interface{}) bool {
		keys = append(keys, key)

		return true
	})

	return keys, nil
}

// Len returns number of elements in cache.
func (c *XSyncMap) Len() int {
	return c.data.Size()
}
