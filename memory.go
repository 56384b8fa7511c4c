package cache

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// errMemoryCacheIsClosed indicates cache was closed and deactivated.
var errMemoryCacheIsClosed = errors.New("cache is closed")

// MemoryConfig controls in-memory cache instance.
type MemoryConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is cache instance name, used in stats and logging.
	Name string

	// DefaultExpiration is applied to Write calls that pass Eternal, default
	// life-only 5m.
	DefaultExpiration Expiration

	// DeleteExpiredAfter is delay before expired entry is deleted from cache, default 24h.
	DeleteExpiredAfter time.Duration

	// DeleteExpiredJobInterval is delay between two consecutive cleanups, default 1h.
	DeleteExpiredJobInterval time.Duration

	// ItemsCountReportInterval is items count metric report interval, default 1m.
	ItemsCountReportInterval time.Duration

	// ExpirationJitter is a fraction of life time to randomize, default 0.1.
	// Use -1 to disable.
	// If enabled, entry life time will be randomly altered in bounds of ±(ExpirationJitter * Life / 2).
	ExpirationJitter float64

	// HeapInUseSoftLimit sets heap in use threshold when eviction of most expired items will be performed.
	//
	// Eviction is a part of delete expired job, eviction runs at most once per delete expired job and
	// removes most expired entries up to HeapInUseEvictFraction.
	HeapInUseSoftLimit uint64

	// HeapInUseEvictFraction is a fraction of total count of items to be evicted (0, 1], default 0.1 (10% of items).
	HeapInUseEvictFraction float64
}

var (
	_ Store    = &Memory{}
	_ Contains = &Memory{}
)

// Memory is an in-memory Store protected by a single RWMutex, with a
// background janitor that deletes entries long past expiration and, under
// heap pressure, evicts the entries closest to expiring.
type Memory struct {
	sync.RWMutex
	data   map[string]entry
	closed chan struct{}

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewMemory creates an instance of in-memory cache with optional configuration.
func NewMemory(cfg ...MemoryConfig) *Memory {
	config := MemoryConfig{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.DeleteExpiredAfter == 0 {
		config.DeleteExpiredAfter = 24 * time.Hour
	}

	if config.DeleteExpiredJobInterval == 0 {
		config.DeleteExpiredJobInterval = time.Hour
	}

	if config.ItemsCountReportInterval == 0 {
		config.ItemsCountReportInterval = time.Minute
	}

	if config.ExpirationJitter == 0 {
		config.ExpirationJitter = 0.1
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

	c := &Memory{
		data:   map[string]entry{},
		config: config,
		stat:   config.Stats,
		log:    config.Logger,
		closed: make(chan struct{}, 1),
	}

	go c.reportItemsCount()
	go c.cleaner()

	return c
}

// Read gets value.
func (c *Memory) Read(ctx context.Context, k string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrCacheItemNotFound
	}

	now := time.Now()

	c.Lock()
	if c.data == nil {
		c.Unlock()

		return nil, errMemoryCacheIsClosed
	}

	cacheEntry, ok := c.data[k]
	if !ok {
		c.Unlock()

		c.log.Debug(ctx, "cache miss", "name", c.config.Name, "key", k)
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, ErrCacheItemNotFound
	}

	if cacheEntry.isExpired(now) {
		c.Unlock()

		c.log.Debug(ctx, "cache key expired", "name", c.config.Name, "key", k)
		c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)

		return cacheEntry.Val, errExpired{entry: cacheEntry}
	}

	cacheEntry.touch(now)
	c.data[k] = cacheEntry
	c.Unlock()

	c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)
	c.log.Debug(ctx, "cache hit", "name", c.config.Name, "key", k)

	return cacheEntry.Val, nil
}

// Write sets value under k with the given expiration. Eternal is replaced by
// the Store's DefaultExpiration, matching the teacher's default-TTL behavior.
func (c *Memory) Write(ctx context.Context, k string, v interface{}, exp Expiration) error {
	c.Lock()
	defer c.Unlock()

	if c.data == nil {
		c.log.Debug(ctx, "writing to a closed cache", "name", c.config.Name, "key", k)

		return errMemoryCacheIsClosed
	}

	if exp.IsEternal() {
		exp = c.config.DefaultExpiration
	}

	if c.config.ExpirationJitter > 0 && exp.Life > 0 {
		exp.Life += time.Duration(float64(exp.Life) * c.config.ExpirationJitter * (rand.Float64() - 0.5))
	}

	c.data[k] = newEntry(v, exp, time.Now())

	c.log.Debug(ctx, "wrote to cache", "name", c.config.Name, "key", k, "value", v, "expiration", exp)
	c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)

	return nil
}

// Remove deletes k and returns its prior value, if any.
func (c *Memory) Remove(ctx context.Context, k string) (interface{}, error) {
	c.Lock()
	defer c.Unlock()

	cacheEntry, ok := c.data[k]
	delete(c.data, k)

	if !ok {
		return nil, ErrCacheItemNotFound
	}

	c.log.Debug(ctx, "removed from cache", "name", c.config.Name, "key", k)

	return cacheEntry.Val, nil
}

// Clear deletes all entries.
func (c *Memory) Clear(ctx context.Context) error {
	c.Lock()
	c.data = make(map[string]entry)
	c.Unlock()

	c.log.Debug(ctx, "cleared cache", "name", c.config.Name)

	return nil
}

// Keys lists the keys currently held, expired or not.
func (c *Memory) Keys(ctx context.Context) ([]string, error) {
	c.RLock()
	defer c.RUnlock()

	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}

	return keys, nil
}

// Contains reports whether k is present and not expired.
func (c *Memory) Contains(ctx context.Context, k string) (bool, error) {
	c.RLock()
	cacheEntry, ok := c.data[k]
	c.RUnlock()

	if !ok {
		return false, nil
	}

	return !cacheEntry.isExpired(time.Now()), nil
}

// Close disables cache instance.
func (c *Memory) Close() {
	c.closed <- struct{}{}
}

func (c *Memory) cleaner() {
	for {
		select {
		case <-time.After(c.config.DeleteExpiredJobInterval):
			c.clearExpired()
		case <-c.closed:
			c.Lock()
			c.data = nil
			c.Unlock()

			return
		}
	}
}

func (c *Memory) clearExpired() {
	boundary := time.Now().Add(-c.config.DeleteExpiredAfter)
	keys := make([]string, 0, 100)

	c.RLock()
	for k, e := range c.data {
		if expireAt := e.ExpireAt(); !expireAt.IsZero() && expireAt.Before(boundary) {
			keys = append(keys, k)
		}
	}
	c.RUnlock()

	c.log.Debug(context.Background(), "clearing expired cache items", "name", c.config.Name, "items", keys)

	c.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.Unlock()

	c.evictHeapInUse()
}

func (c *Memory) reportItemsCount() {
	for {
		<-time.After(c.config.ItemsCountReportInterval)

		c.RLock()
		closed := c.data == nil
		count := len(c.data)
		c.RUnlock()

		if closed {
			return
		}

		c.log.Debug(context.Background(), "cache items count", "name", c.config.Name, "count", count)
		c.stat.Set(context.Background(), MetricItems, float64(count), "name", c.config.Name)
	}
}

// Len returns number of elements in cache.
func (c *Memory) Len() int {
	c.RLock()
	cnt := len(c.data)
	c.RUnlock()

	return cnt
}

// Walk walks cached entries.
func (c *Memory) Walk(walkFn func(key string, value Entry) error) (int, error) {
	c.RLock()
	snapshot := make(map[string]entry, len(c.data))
	for k, v := range c.data {
		snapshot[k] = v
	}
	c.RUnlock()

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
