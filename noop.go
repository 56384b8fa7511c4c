package cache

import (
	"context"
)

// NoOp is a Store stub that never holds anything. It is useful to disable
// caching behind a Store-shaped interface without branching call sites, and
// as the Store of a ComputingCache that coalesces producers but caches nothing.
type NoOp struct{}

var _ Store = NoOp{}

// Read always reports a miss.
func (NoOp) Read(ctx context.Context, key string) (interface{}, error) {
	return nil, ErrCacheItemNotFound
}

// Write discards value.
func (NoOp) Write(ctx context.Context, key string, v interface{}, exp Expiration) error {
	return nil
}

// Remove is a no-op, there is never anything to remove.
func (NoOp) Remove(ctx context.Context, key string) (interface{}, error) {
	return nil, ErrCacheItemNotFound
}

// Clear is a no-op.
func (NoOp) Clear(ctx context.Context) error {
	return nil
}

// Keys always reports an empty key set.
func (NoOp) Keys(ctx context.Context) ([]string, error) {
	return nil, nil
}
