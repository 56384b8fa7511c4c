package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingProducers_acquire_leaderOnlyOnce(t *testing.T) {
	r := newPendingProducers()

	q1, p1, leader1 := r.acquire("k")
	q2, p2, leader2 := r.acquire("k")

	assert.True(t, leader1)
	assert.False(t, leader2)
	assert.Same(t, q1, q2)
	assert.NotSame(t, p1, p2)
	assert.Less(t, p1.seq, p2.seq)
	assert.Equal(t, 2, q1.len())
}

func TestPendingProducers_releaseIfEmpty(t *testing.T) {
	r := newPendingProducers()

	q, p, _ := r.acquire("k")
	require.NotNil(t, r.peek("k"))

	q.remove(p)
	r.releaseIfEmpty("k", q)

	assert.Nil(t, r.peek("k"))
}

// TestPromiseQueue_resolveAndDrain_stopsAtOwnLeavesYoungerSiblings exercises
// the registry-level half of the overtaking rule directly: resolving the
// middle promise of three must resolve it and every older sibling, but
// leave the younger sibling queued and untouched.
func TestPromiseQueue_resolveAndDrain_stopsAtOwnLeavesYoungerSiblings(t *testing.T) {
	q := newPromiseQueue()

	older := newPromise(1)
	own := newPromise(2)
	younger := newPromise(3)

	q.offer(older)
	q.offer(own)
	q.offer(younger)

	var resolved []*promise

	ownDone, empty := q.resolveAndDrain(func(p *promise) bool {
		resolved = append(resolved, p)

		return p.setValue("v")
	}, own)

	assert.True(t, ownDone)
	assert.False(t, empty)
	assert.ElementsMatch(t, []*promise{older, own}, resolved)
	assert.Equal(t, 1, q.len())
	assert.True(t, older.isDone())
	assert.True(t, own.isDone())
	assert.False(t, younger.isDone())
}

// TestPromiseQueue_resolveAndDrain_lateOwnAlreadyResolvedIsNoop covers the
// case a position-based walk gets wrong: a promise that finishes after it
// already lost the race to an earlier, faster sibling must not touch any
// younger sibling still queued, even though its own promise is no longer in
// the queue to stop the walk at.
func TestPromiseQueue_resolveAndDrain_lateOwnAlreadyResolvedIsNoop(t *testing.T) {
	q := newPromiseQueue()

	own := newPromise(1)
	younger := newPromise(2)

	own.setValue("earlier-winner")
	q.remove(own)
	q.offer(younger)

	ownDone, empty := q.resolveAndDrain(func(p *promise) bool {
		return p.setValue("late-loser")
	}, own)

	assert.False(t, ownDone, "own was already resolved by the time it calls in")
	assert.False(t, empty)
	assert.False(t, younger.isDone(), "a late, already-beaten producer must not resolve a younger sibling")
}

func TestPromiseQueue_pollAll_drains(t *testing.T) {
	q := newPromiseQueue()
	q.offer(newPromise(1))
	q.offer(newPromise(2))

	all := q.pollAll()
	assert.Len(t, all, 2)
	assert.Equal(t, 0, q.len())
}

func TestPendingProducers_keys(t *testing.T) {
	r := newPendingProducers()
	r.acquire("a")
	r.acquire("b")

	assert.ElementsMatch(t, []string{"a", "b"}, r.keys())
}
