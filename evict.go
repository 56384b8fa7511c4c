package cache

import (
	"context"
	"runtime"
	"sort"
	"time"
)

func (c *Memory) evictHeapInUse() {
	if c.config.HeapInUseSoftLimit == 0 {
		return
	}

	runtime.GC()

	m := runtime.MemStats{}
	runtime.ReadMemStats(&m)

	if m.HeapInuse < c.config.HeapInUseSoftLimit {
		return
	}

	type candidate struct {
		key      string
		expireAt time.Time
	}

	c.RLock()
	keysCnt := len(c.data)
	c.RUnlock()

	entries := make([]candidate, 0, keysCnt)

	// Collect all keys and expirations.
	c.RLock()
	for k, i := range c.data {
		entries = append(entries, candidate{key: k, expireAt: i.ExpireAt()})
	}
	c.RUnlock()

	// Sort entries to put soonest-to-expire first; eternal entries (zero
	// expireAt) sort last and are evicted only if nothing else is left.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].expireAt.IsZero() != entries[j].expireAt.IsZero() {
			return entries[j].expireAt.IsZero()
		}

		return entries[i].expireAt.Before(entries[j].expireAt)
	})

	evictFraction := c.config.HeapInUseEvictFraction
	if evictFraction == 0 {
		evictFraction = 0.1
	}

	evictItems := int(float64(len(entries)) * evictFraction)

	c.stat.Add(context.Background(), MetricEvict, float64(evictItems), "name", c.config.Name)

	for i := 0; i < evictItems; i++ {
		c.Lock()
		delete(c.data, entries[i].key)
		c.Unlock()
	}
}
