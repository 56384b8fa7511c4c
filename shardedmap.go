package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/cespare/xxhash/v2"
)

var _ Store = &ShardedMap{}

const shards = 64

type bucket struct {
	sync.RWMutex
	data map[string]entry
}

// ShardedMap is a Store that spreads keys across a fixed number of
// independently-locked buckets, keyed by xxhash of the cache key, to reduce
// lock contention compared to RWMutexMap under concurrent access.
type ShardedMap struct {
	buckets [shards]bucket

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewShardedMap creates an instance of ShardedMap with optional configuration.
func NewShardedMap(cfg ...MemoryConfig) *ShardedMap {
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

	c := &ShardedMap{
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
	}

	for i := 0; i < shards; i++ {
		c.buckets[i].data = make(map[string]entry)
	}

	return c
}

func (c *ShardedMap) bucket(key string) *bucket {
	return &c.buckets[xxhash.Sum64String(key)%shards]
}

// Read gets value.
func (c *ShardedMap) Read(ctx context.Context, key string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrCacheItemNotFound
	}

	now := time.Now()
	b := c.bucket(key)

	b.Lock()
	defer b.Unlock()

	cacheEntry, found := b.data[key]
	if !found {
		c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)

		return nil, ErrCacheItemNotFound
	}

	if cacheEntry.isExpired(now) {
		delete(b.data, key)

		c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)

		return cacheEntry.Val, errExpired{entry: cacheEntry}
	}

	cacheEntry.touch(now)
	b.data[key] = cacheEntry

	c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)

	return cacheEntry.Val, nil
}

// Write sets value.
func (c *ShardedMap) Write(ctx context.Context, key string, v interface{}, exp Expiration) error {
	b := c.bucket(key)

	b.Lock()
	defer b.Unlock()

	if exp.IsEternal() {
		exp = c.config.DefaultExpiration
	}

	b.data[key] = newEntry(v, exp, time.Now())

	c.log.Debug(ctx, "wrote to cache", "name", c.config.Name, "key", key, "value", v, "expiration", exp)
	c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)

	return nil
}

// Remove deletes key and returns its prior value, if any.
func (c *ShardedMap) Remove(ctx context.Context, key string) (interface{}, error) {
	b := c.bucket(key)

	b.Lock()
	defer b.Unlock()

	cacheEntry, found := b.data[key]
	delete(b.data, key)

	if !found {
		return nil, ErrCacheItemNotFound
	}

	return cacheEntry.Val, nil
}

// Clear deletes all entries in every bucket.
func (c *ShardedMap) Clear(ctx context.Context) error {
	for i := range c.buckets {
		c.buckets[i].Lock()
		c.buckets[i].data = make(map[string]entry)
		c.buckets[i].Unlock()
	}

	return nil
}

// Keys lists the keys currently held across every bucket, expired or not.
func (c *ShardedMap) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)

	for i := range c.buckets {
		c.buckets[i].RLock()
		for k := range c.buckets[i].data {
			keys = append(keys, k)
		}
		c.buckets[i].RUnlock()
	}

	return keys, nil
}

// Len returns number of elements in cache.
func (c *ShardedMap) Len() int {
	cnt := 0

	for i := range c.buckets {
		c.buckets[i].RLock()
		cnt += len(c.buckets[i].data)
		c.buckets[i].RUnlock()
	}

	return cnt
}

// Walk walks cached entries across every bucket.
func (c *ShardedMap) Walk(walkFn func(key string, value Entry) error) (int, error) {
	n := 0

	for i := range c.buckets {
		c.buckets[i].RLock()
		snapshot := make(map[string]entry, len(c.buckets[i].data))
		for k, v := range c.buckets[i].data {
			snapshot[k] = v
		}
		c.buckets[i].RUnlock()

		for k, v := range snapshot {
			e := v
			if err := walkFn(k, &e); err != nil {
				return n, err
			}

			n++
		}
	}

	return n, nil
}
