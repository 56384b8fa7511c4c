package cache

import (
	"sync/atomic"
	"time"
)

// entry is a Store's internal cache record.
type entry struct {
	Val       interface{}
	Exp       Expiration
	CreatedAt time.Time

	// lastAccessAtNano is read and updated atomically. A Store's Read
	// refreshes it on its copy of the entry and stores that copy back;
	// Memory, RWMutexMap and ShardedMap do this under an exclusive lock.
	lastAccessAtNano int64
}

func newEntry(val interface{}, exp Expiration, now time.Time) entry {
	return entry{
		Val:              val,
		Exp:              exp,
		CreatedAt:        now,
		lastAccessAtNano: now.UnixNano(),
	}
}

// Value implements Entry.
func (e *entry) Value() interface{} {
	return e.Val
}

// ExpireAt implements Expirable, returning the absolute life-time deadline.
// It returns the zero Time if the entry has no life-time bound.
func (e *entry) ExpireAt() time.Time {
	if e.Exp.Life == 0 {
		return time.Time{}
	}

	return e.CreatedAt.Add(e.Exp.Life)
}

// isExpired reports whether e is expired at now, per its Expiration.
func (e *entry) isExpired(now time.Time) bool {
	if e.Exp.IsEternal() {
		return false
	}

	if e.Exp.Life > 0 && now.Sub(e.CreatedAt) > e.Exp.Life {
		return true
	}

	if e.Exp.Idle > 0 {
		last := time.Unix(0, atomic.LoadInt64(&e.lastAccessAtNano))
		if now.Sub(last) > e.Exp.Idle {
			return true
		}
	}

	return false
}

// touch refreshes the idle window as of now.
func (e *entry) touch(now time.Time) {
	atomic.StoreInt64(&e.lastAccessAtNano, now.UnixNano())
}

// errExpired carries the stale value of an expired entry.
type errExpired struct {
	entry entry
}

// Error implements error.
func (e errExpired) Error() string {
	return ErrExpiredCacheItem.Error()
}

// Value implements ErrExpired.
func (e errExpired) Value() interface{} {
	return e.entry.Val
}

// ExpiredAt implements ErrExpired.
func (e errExpired) ExpiredAt() time.Time {
	return e.entry.ExpireAt()
}

// Is allows errors.Is(err, ErrExpiredCacheItem) to succeed for errExpired.
func (e errExpired) Is(err error) bool {
	return err == ErrExpiredCacheItem
}
