package cache

import (
	"context"
	"reflect"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// Producer computes the value to cache for key. A nil Producer is rejected
// with ErrInvalidArgument before any side effect takes place.
type Producer func(ctx context.Context) (interface{}, error)

// Config configures a ComputingCache. Every field is optional; a zero Config
// yields a no-op logger and a no-op stats tracker, matching FailoverConfig's
// own defaulting style.
type Config struct {
	Name   string
	Logger ctxd.Logger
	Stats  stats.Tracker
}

func (c *Config) init() {
	if c.Logger == nil {
		c.Logger = ctxd.NoOpLogger{}
	}

	if c.Stats == nil {
		c.Stats = stats.NoOp{}
	}

	if c.Name == "" {
		c.Name = "cache"
	}
}

// ComputingCache coordinates concurrent producers for the same key over a
// Store: concurrent misses for a key collapse onto one in-flight producer,
// and an explicit, unconditional recomputation races any producer already
// in flight for that key. A producer that finishes publishes its value to
// every still-pending caller registered before it; callers registered after
// it keep waiting on their own producers.
type ComputingCache struct {
	store   Store
	cfg     Config
	pending *pendingProducers
}

// New builds a ComputingCache layered over store.
func New(store Store, cfg ...Config) *ComputingCache {
	c := Config{}
	if len(cfg) > 0 {
		c = cfg[0]
	}

	c.init()

	return &ComputingCache{
		store:   store,
		cfg:     c,
		pending: newPendingProducers(),
	}
}

// Get returns the cached value for key, or ErrCacheItemNotFound if absent.
//
// A reader prefers a stale precomputed value over blocking on an in-flight
// recomputation: the Store is checked first. An expired entry is treated the
// same as a genuine miss — the richer errExpired the Store can surface is a
// detail Failover-style callers use, but the computing-cache coordinator
// flattens it back down to plain absence. On any miss, Get falls back to the
// oldest pending producer for key, if any, and awaits it — so a reader that
// begins after a producer has registered still observes that producer's
// result (or nil, nil if a concurrent Remove/Clear cancels it first). It
// never runs a producer of its own; use ComputeAndPutIfAbsent for a read
// that falls back to computing a missing value.
func (c *ComputingCache) Get(ctx context.Context, key string) (interface{}, error) {
	val, err := c.store.Read(ctx, key)
	if err == nil {
		return val, nil
	}

	if val, err, ok := c.awaitPending(ctx, key); ok {
		return val, err
	}

	return nil, ErrCacheItemNotFound
}

// Contains reports whether key is present and not expired, without
// returning its value. It uses the Store's own Contains implementation when
// available, falling back to a plain Read otherwise.
func (c *ComputingCache) Contains(ctx context.Context, key string) (bool, error) {
	if checker, ok := c.store.(Contains); ok {
		return checker.Contains(ctx, key)
	}

	if _, err := c.store.Read(ctx, key); err != nil {
		return false, nil
	}

	return true, nil
}

// Put unconditionally stores value under key with an eternal expiration.
//
// Semantically this is ComputeAndPut with a producer that trivially returns
// value: a put performed while a producer is already running for key is a
// fast competing producer and overtakes any still-unfinished older one.
func (c *ComputingCache) Put(ctx context.Context, key string, value interface{}) (interface{}, error) {
	return c.PutWithExpiration(ctx, key, value, Eternal)
}

// PutWithExpiration unconditionally stores value under key with exp,
// overtaking any producer already in flight for key exactly as ComputeAndPut does.
func (c *ComputingCache) PutWithExpiration(ctx context.Context, key string, value interface{}, exp Expiration) (interface{}, error) {
	return c.compute(ctx, key, func(context.Context) (interface{}, error) { return value, nil }, exp, false)
}

// ComputeAndPut unconditionally runs producer and stores its result under
// key with an eternal expiration, coordinating with any producer already
// in flight for key per the package's overtaking semantics.
func (c *ComputingCache) ComputeAndPut(ctx context.Context, key string, producer Producer) (interface{}, error) {
	return c.ComputeAndPutWithExpiration(ctx, key, producer, Eternal)
}

// ComputeAndPutWithExpiration is ComputeAndPut with an explicit Expiration.
func (c *ComputingCache) ComputeAndPutWithExpiration(
	ctx context.Context, key string, producer Producer, exp Expiration,
) (interface{}, error) {
	if producer == nil {
		return nil, invalidArgument("producer")
	}

	return c.compute(ctx, key, producer, exp, false)
}

// ComputeAndPutIfAbsent returns the cached value for key if present, else
// runs producer once on behalf of every concurrent caller racing for the
// same missing key and stores its result with exp.
func (c *ComputingCache) ComputeAndPutIfAbsent(ctx context.Context, key string, producer Producer, exp Expiration) (interface{}, error) {
	if producer == nil {
		return nil, invalidArgument("producer")
	}

	if val, err := c.store.Read(ctx, key); err == nil {
		return val, nil
	}

	return c.compute(ctx, key, producer, exp, true)
}

// compute is the shared coordination path for ComputeAndPut and
// ComputeAndPutIfAbsent. When coalesceOnly is true and a producer is already
// in flight for key, the caller awaits that producer's own promise exactly
// as Get does, rather than registering a competing promise of its own — it
// only becomes a producer itself when none is currently in flight.
func (c *ComputingCache) compute(
	ctx context.Context, key string, producer Producer, exp Expiration, coalesceOnly bool,
) (interface{}, error) {
	if coalesceOnly {
		if val, err, ok := c.awaitPending(ctx, key); ok {
			return val, err
		}
	}

	q, p, _ := c.pending.acquire(key)

	val, err := c.runProducer(ctx, key, producer)

	c.resolveAndBroadcast(ctx, key, q, p, val, err, exp)

	// p is now resolved, either by this call or by a younger sibling that
	// finished before it and overtook it. A cancelled p means a concurrent
	// Remove/Clear raced in: the Store was left empty and every waiter
	// already saw nil, nil, but this producer's own caller still gets its
	// own locally computed value. Otherwise p's resolved value is
	// authoritative: it belongs to whichever of this producer and its
	// younger siblings finished earliest.
	if p.isCancelled() {
		return val, err
	}

	return p.await(context.Background())
}

// runProducer invokes producer, translating a returned error into an
// *ExecutionError the way every delivery path in this package does.
func (c *ComputingCache) runProducer(ctx context.Context, key string, producer Producer) (interface{}, error) {
	val, err := producer(ctx)
	if err != nil {
		c.cfg.Logger.Important(ctx, "cache computation failed", "key", key, "error", err)
		c.cfg.Stats.Add(ctx, "cache_miss_error", 1, "name", c.cfg.Name)

		return nil, &ExecutionError{Cause: err}
	}

	c.cfg.Stats.Add(ctx, "cache_miss", 1, "name", c.cfg.Name)

	return val, nil
}

// resolveAndBroadcast resolves p with (val, err), also resolving every
// sibling in q still pending from before p's own registration — a faster
// younger producer publishes its value to the older ones it overtook.
// Younger siblings are left untouched in q: each is a producer in its own
// right and will resolve (and, if successful, write) its own value when it
// finishes, so the last producer to complete is the one whose write to the
// Store survives.
func (c *ComputingCache) resolveAndBroadcast(
	ctx context.Context, key string, q *promiseQueue, p *promise, val interface{}, err error, exp Expiration,
) {
	resolve := func(sib *promise) bool {
		if err != nil {
			return sib.setError(err)
		}

		return sib.setValue(val)
	}

	wonOwn := c.pending.resolveAndRelease(key, q, resolve, p)

	// Only the goroutine that actually resolved p (i.e. was not itself
	// overtaken by an even faster sibling before it got here) writes the
	// final value to the Store.
	if err == nil && wonOwn {
		if werr := c.store.Write(ctx, key, val, exp); werr != nil {
			c.cfg.Logger.Important(ctx, "cache store write failed", "key", key, "error", werr)
		}
	}
}

// awaitPending awaits the oldest promise currently in flight for key, if
// any, without registering a promise of its own — the same delegation Get
// uses. ok reports whether a producer was actually in flight to await.
func (c *ComputingCache) awaitPending(ctx context.Context, key string) (val interface{}, err error, ok bool) {
	q := c.pending.peek(key)
	if q == nil {
		return nil, nil, false
	}

	p := q.peek()
	if p == nil {
		return nil, nil, false
	}

	val, err = p.await(ctx)

	return val, err, true
}

// Remove deletes key from the Store and cancels every promise currently
// queued for it, so concurrent waiters return immediately instead of
// blocking on a producer that will never matter to them. The producer
// itself, if any, still completes and still returns its own result to its
// own caller.
func (c *ComputingCache) Remove(ctx context.Context, key string) (interface{}, error) {
	val, err := c.store.Remove(ctx, key)

	c.cancelPending(key)

	return val, err
}

// RemoveIfMatch removes key only if its current value equals expected.
//
// The comparison and the removal are two separate Store calls, not one
// atomic step: a write to key that lands between them is not detected.
func (c *ComputingCache) RemoveIfMatch(ctx context.Context, key string, expected interface{}) (bool, error) {
	cur, err := c.store.Read(ctx, key)
	if err != nil {
		return false, nil
	}

	if !reflect.DeepEqual(cur, expected) {
		return false, nil
	}

	if _, err := c.Remove(ctx, key); err != nil {
		return false, err
	}

	return true, nil
}

// Replace overwrites key's value with newValue only if key is currently
// present, and returns the value it replaced, nil if key was absent.
func (c *ComputingCache) Replace(ctx context.Context, key string, newValue interface{}) (interface{}, error) {
	prior, err := c.store.Read(ctx, key)
	if err != nil {
		return nil, nil
	}

	if err := c.store.Write(ctx, key, newValue, Eternal); err != nil {
		return nil, err
	}

	return prior, nil
}

// ReplaceIfMatch overwrites key's value with newValue only if its current
// value equals oldValue.
func (c *ComputingCache) ReplaceIfMatch(ctx context.Context, key string, oldValue, newValue interface{}) (bool, error) {
	cur, err := c.store.Read(ctx, key)
	if err != nil {
		return false, nil
	}

	if !reflect.DeepEqual(cur, oldValue) {
		return false, nil
	}

	if err := c.store.Write(ctx, key, newValue, Eternal); err != nil {
		return false, err
	}

	return true, nil
}

// RemoveIf removes every key for which predicate returns true, and reports
// whether any key matched. The candidate key set is the union of the
// Store's Keys() and the registry's currently tracked keys, so a key with
// only an in-flight computation and no Store entry yet is still reachable.
func (c *ComputingCache) RemoveIf(ctx context.Context, predicate func(key string) bool) (bool, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return false, err
	}

	seen := make(map[string]struct{}, len(keys))
	candidates := make([]string, 0, len(keys))

	for _, key := range keys {
		seen[key] = struct{}{}
		candidates = append(candidates, key)
	}

	for _, key := range c.pending.keys() {
		if _, ok := seen[key]; !ok {
			candidates = append(candidates, key)
		}
	}

	matched := false

	for _, key := range candidates {
		if predicate(key) {
			if _, err := c.Remove(ctx, key); err != nil {
				return matched, err
			}

			matched = true
		}
	}

	return matched, nil
}

// Clear drops every entry from the Store and cancels every promise currently
// in flight for every key.
func (c *ComputingCache) Clear(ctx context.Context) error {
	for _, key := range c.pending.keys() {
		c.cancelPending(key)
	}

	return c.store.Clear(ctx)
}

func (c *ComputingCache) cancelPending(key string) {
	for _, p := range c.pending.takeAndClear(key) {
		p.cancel()
	}
}
