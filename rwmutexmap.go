package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

var _ Store = &RWMutexMap{}

// RWMutexMap is a Store backed by a plain map guarded by sync.RWMutex, with
// no background janitor: expired entries are only noticed and dropped when
// Read encounters them. It is the simplest Store in this package and a
// useful baseline to benchmark the others against.
type RWMutexMap struct {
	mu   sync.RWMutex
	data map[string]entry

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewRWMutexMap creates an instance of RWMutexMap with optional configuration.
func NewRWMutexMap(cfg ...MemoryConfig) *RWMutexMap {
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

	return &RWMutexMap{
		data:   map[string]entry{},
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
	}
}

// Read gets value.
func (c *RWMutexMap) Read(ctx context.Context, k string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrCacheItemNotFound
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	cacheEntry, found := c.data[k]
	if !found {
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, ErrCacheItemNotFound
	}

	if cacheEntry.isExpired(now) {
		delete(c.data, k)

		c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)

		return cacheEntry.Val, errExpired{entry: cacheEntry}
	}

	cacheEntry.touch(now)
	c.data[k] = cacheEntry

	c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)

	return cacheEntry.Val, nil
}

// Write sets value.
func (c *RWMutexMap) Write(ctx context.Context, k string, v interface{}, exp Expiration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if exp.IsEternal() {
		exp = c.config.DefaultExpiration
	}

	c.data[k] = newEntry(v, exp, time.Now())

	c.log.Debug(ctx, "wrote to cache", "name", c.config.Name, "key", k, "value", v, "expiration", exp)
	c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)

	return nil
}

// Remove deletes k and returns its prior value, if any.
func (c *RWMutexMap) Remove(ctx context.Context, k string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cacheEntry, found := c.data[k]
	delete(c.data, k)

	if !found {
		return nil, ErrCacheItemNotFound
	}

	return cacheEntry.Val, nil
}

// Clear deletes all entries.
func (c *RWMutexMap) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]entry)
	c.mu.Unlock()

	return nil
}

// Keys lists the keys currently held, expired or not.
func (c *RWMutexMap) Keys(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}

	return keys, nil
}

// Len returns number of elements in cache.
func (c *RWMutexMap) Len() int {
	c.mu.RLock()
	cnt := len(c.data)
	c.mu.RUnlock()

	return cnt
}

// Walk walks cached entries.
func (c *RWMutexMap) Walk(walkFn func(key string, value Entry) error) (int, error) {
	c.mu.RLock()
	snapshot := make(map[string]entry, len(c.data))
	for k, v := range c.data {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	n := 0

	for k, v := range snapshot {
		e := v
		if err := walkFn(k, &e); err != nil {
			return n, err
		}

		n++
	}

	return n, nil
}
