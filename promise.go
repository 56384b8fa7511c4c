package cache

import (
	"context"
	"sync"
)

// promise is a single-assignment cell shared by every caller waiting on the
// same in-flight computation for a key. Exactly one of setValue, setError or
// cancel may take effect; later calls are no-ops.
//
// It mirrors Guava's ValueFuture: a producer owns the promise it created and
// resolves it exactly once, while any number of concurrent readers await it.
type promise struct {
	mu sync.Mutex

	done      chan struct{}
	resolved  bool
	cancelled bool
	val       interface{}
	err       error

	// seq orders promises for the same key by creation, oldest first. It is
	// assigned by the registry that creates the promise.
	seq uint64
}

func newPromise(seq uint64) *promise {
	return &promise{
		done: make(chan struct{}),
		seq:  seq,
	}
}

// setValue resolves p with val. It is a no-op if p is already resolved.
func (p *promise) setValue(val interface{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return false
	}

	p.val = val
	p.resolved = true
	close(p.done)

	return true
}

// setError resolves p with err. It is a no-op if p is already resolved.
func (p *promise) setError(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return false
	}

	p.err = err
	p.resolved = true
	close(p.done)

	return true
}

// cancel resolves p as cancelled, used when a Remove or Clear races with the
// producer still computing this promise's value. It is a no-op if p is
// already resolved.
func (p *promise) cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return false
	}

	p.cancelled = true
	p.resolved = true
	close(p.done)

	return true
}

// isDone reports whether p has been resolved, by any of setValue/setError/cancel.
func (p *promise) isDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resolved
}

// isCancelled reports whether p was resolved via cancel.
func (p *promise) isCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cancelled
}

// await blocks until p is resolved or ctx is cancelled.
//
// A context cancellation is swallowed the way a Java thread interruption is
// swallowed by the original computing cache: await returns nil, nil rather
// than ctx.Err(), leaving the promise itself untouched for other waiters.
func (p *promise) await(ctx context.Context) (interface{}, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelled {
		return nil, nil
	}

	return p.val, p.err
}
