// Package cache provides an in-process, keyed value cache with a pluggable
// Store and a computing-cache coordination layer that coalesces concurrent
// producers for the same key.
//
// Features:
//
//   - A Store contract (Reader/Writer/Remover/Clearer/KeyLister) that any
//     concurrent keyed container can satisfy — several reference
//     implementations are provided (Memory, RWMutexMap, ShardedMap, XSyncMap,
//     NoOp).
//   - A ComputingCache coordinator layered over any Store: concurrent callers
//     asking for the same missing key block on one in-flight producer instead
//     of racing to compute duplicate values.
//   - Deterministic ordering between concurrent producers for the same key:
//     a producer that finishes first publishes its value to every older,
//     still-running sibling.
//   - A Remove or Clear that races with a running producer cancels every
//     waiter immediately without waiting for the producer to finish, while
//     the producer itself still returns its own computed value to its own
//     caller.
//   - An optional stale-while-revalidate strategy (Failover) as an
//     alternative to blocking coalescence.
package cache

import (
	"context"
	"time"
)

// DefaultTTL indicates the default (unlimited TTL) value for entry expiration time.
const DefaultTTL = time.Duration(0)

// Reader reads from a Store.
type Reader interface {
	// Read returns the cached value and/or an error.
	// If ErrExpiredCacheItem is returned, the expired value is returned as well.
	Read(ctx context.Context, key string) (interface{}, error)
}

// Writer writes to a Store.
type Writer interface {
	// Write stores value under key, honoring the given expiration.
	Write(ctx context.Context, key string, value interface{}, exp Expiration) error
}

// Remover removes a single entry from a Store.
type Remover interface {
	// Remove deletes key and returns its prior value, nil if absent.
	Remove(ctx context.Context, key string) (interface{}, error)
}

// Clearer drops every entry from a Store.
type Clearer interface {
	Clear(ctx context.Context) error
}

// KeyLister enumerates the keys currently held by a Store.
//
// The returned set is only consistent with Read at the moment it was taken;
// a Store may add or evict entries concurrently with the call.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Contains reports whether a Store currently holds a key.
type Contains interface {
	Contains(ctx context.Context, key string) (bool, error)
}

// ReadWriter reads from and writes to a Store.
type ReadWriter interface {
	Reader
	Writer
}

// Store is the external, concurrent, expiration-aware keyed container the
// computing cache coordinator layers upon. Any type satisfying Store can be
// swapped in — a concurrent map, an LRU engine, a distributed cache.
type Store interface {
	Reader
	Writer
	Remover
	Clearer
	KeyLister
}

// Entry is a single cached record, as surfaced to Walker callbacks.
type Entry interface {
	Value() interface{}
}

// Expirable describes an Entry's absolute expiration time, if any.
type Expirable interface {
	ExpireAt() time.Time
}

// Walker calls fn for every entry in a Store and stops on the first error fn returns.
//
// The count of processed entries is returned.
type Walker interface {
	Walk(fn func(key string, e Entry) error) (int, error)
}

// ErrExpired describes an expiration error carrying the entry's stale value.
type ErrExpired interface {
	error
	Value() interface{}
	ExpiredAt() time.Time
}
