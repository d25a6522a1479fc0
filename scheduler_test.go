package synclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(strategy Strategy) *Queue {
	return NewQueue(strategy, func() Handle { return NewGoroutineHandle() })
}

func TestQueueTryAcquireReleaseCycle(t *testing.T) {
	q := newTestQueue(FairStrategy)
	h, ok := q.TryAcquire(MethodWrite)
	require.True(t, ok)
	q.Release(h)

	h2, ok := q.TryAcquire(MethodWrite)
	require.True(t, ok)
	q.Release(h2)
}

func TestQueueTryAcquireFailsWhenBlocked(t *testing.T) {
	q := newTestQueue(FairStrategy)
	writer, ok := q.TryAcquire(MethodWrite)
	require.True(t, ok)

	_, ok = q.TryAcquire(MethodWrite)
	assert.False(t, ok)

	q.Release(writer)

	_, ok = q.TryAcquire(MethodWrite)
	assert.True(t, ok)
}

func TestQueueReadersConcurrentWritersSerialized(t *testing.T) {
	q := newTestQueue(FairStrategy)
	r1, ok := q.TryAcquire(MethodRead)
	require.True(t, ok)
	r2, ok := q.TryAcquire(MethodRead)
	require.True(t, ok)

	_, ok = q.TryAcquire(MethodWrite)
	assert.False(t, ok, "writer must not jump ahead of active readers")

	q.Release(r1)
	q.Release(r2)

	w, ok := q.TryAcquire(MethodWrite)
	require.True(t, ok)
	q.Release(w)
}

// alwaysOkStrategy admits every waiter unconditionally - a strategy that
// obviously violates the scheduler's invariants as soon as two
// incompatible waiters are both present.
func alwaysOkStrategy(entries []Entry) []State {
	states := make([]State, len(entries))
	for i := range states {
		states[i] = StateOk
	}
	return states
}

func TestQueueDetectsConcurrentReadAndWrite(t *testing.T) {
	q := newTestQueue(alwaysOkStrategy)
	_, ok := q.TryAcquire(MethodRead)
	require.True(t, ok)

	assert.PanicsWithValue(t, ErrConcurrentReadAndWrite, func() {
		q.Acquire(MethodWrite)
	})
}

func TestQueueDetectsConcurrentMultipleWrites(t *testing.T) {
	q := newTestQueue(alwaysOkStrategy)
	_, ok := q.TryAcquire(MethodWrite)
	require.True(t, ok)

	assert.PanicsWithValue(t, ErrConcurrentMultipleWrites, func() {
		q.Acquire(MethodWrite)
	})
}

func TestQueueBreaksLockAfterLogicError(t *testing.T) {
	q := newTestQueue(alwaysOkStrategy)
	_, ok := q.TryAcquire(MethodWrite)
	require.True(t, ok)

	assert.Panics(t, func() { q.Acquire(MethodWrite) })

	assert.PanicsWithValue(t, ErrBrokenLock, func() {
		q.Acquire(MethodRead)
	})
}

func TestQueueDetectsBlockedAfterOkState(t *testing.T) {
	call := 0
	flaky := func(entries []Entry) []State {
		call++
		if call == 1 {
			return []State{StateOk}
		}
		// Regresses the first (now-admitted) entry back to Blocked while
		// admitting the second - not the currently-acquiring entry's own
		// first evaluation, so this is a genuine violation.
		return []State{StateBlocked, StateOk}
	}

	q := newTestQueue(flaky)
	_, ok := q.TryAcquire(MethodWrite)
	require.True(t, ok)

	assert.PanicsWithValue(t, ErrBlockedAfterOkState, func() {
		q.Acquire(MethodRead)
	})
}

func TestQueueDetectsLengthMismatchWithoutBreaking(t *testing.T) {
	mismatched := func(entries []Entry) []State {
		return []State{}
	}
	q := newTestQueue(mismatched)

	assert.PanicsWithValue(t, ErrStrategyLengthMismatch, func() {
		q.Acquire(MethodRead)
	})
	// Not marked broken: the very next attempt panics identically, rather
	// than with ErrBrokenLock, because the flaw is in the strategy itself.
	assert.PanicsWithValue(t, ErrStrategyLengthMismatch, func() {
		q.Acquire(MethodRead)
	})
}
