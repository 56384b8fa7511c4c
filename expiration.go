package cache

import (
	"fmt"
	"time"
)

// Expiration describes when a cached entry should be considered too old.
//
// Life is the hard upper bound measured from insertion. Idle is the maximum
// gap allowed between two successful reads before the entry is considered
// expired. An Expiration with both fields zero is eternal: the entry never
// expires by time, though a Store may still evict it under pressure.
type Expiration struct {
	Life time.Duration
	Idle time.Duration
}

// Eternal never expires by time.
var Eternal = Expiration{}

// NewExpiration builds an Expiration from a life time and an idle time.
//
// Either may be zero to disable that check; both zero is Eternal. Negative
// durations are rejected with ErrInvalidArgument.
func NewExpiration(life, idle time.Duration) (Expiration, error) {
	if life < 0 {
		return Expiration{}, invalidArgument("life")
	}

	if idle < 0 {
		return Expiration{}, invalidArgument("idle")
	}

	return Expiration{Life: life, Idle: idle}, nil
}

// ExpireAfterLife builds a life-time-only Expiration.
func ExpireAfterLife(life time.Duration) (Expiration, error) {
	return NewExpiration(life, 0)
}

// ExpireAfterIdle builds an idle-time-only Expiration.
func ExpireAfterIdle(idle time.Duration) (Expiration, error) {
	return NewExpiration(0, idle)
}

// MustExpiration is like NewExpiration but panics on invalid arguments.
//
// Intended for package-level variables where the durations are compile-time
// constants known to be valid.
func MustExpiration(life, idle time.Duration) Expiration {
	e, err := NewExpiration(life, idle)
	if err != nil {
		panic(fmt.Sprintf("cache: %v", err))
	}

	return e
}

// IsEternal reports whether both Life and Idle are zero.
func (e Expiration) IsEternal() bool {
	return e.Life == 0 && e.Idle == 0
}

// LifeIn returns the life time expressed as a count of unit.
func (e Expiration) LifeIn(unit time.Duration) int64 {
	if unit <= 0 {
		return 0
	}

	return int64(e.Life / unit)
}

// IdleIn returns the idle time expressed as a count of unit.
func (e Expiration) IdleIn(unit time.Duration) int64 {
	if unit <= 0 {
		return 0
	}

	return int64(e.Idle / unit)
}
