// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package synclock

// strategyLogicErrorKind enumerates the ways a caller-supplied Strategy can
// violate the scheduler's invariants.
type strategyLogicErrorKind int

const (
	logicErrConcurrentReadAndWrite strategyLogicErrorKind = iota
	logicErrConcurrentMultipleWrites
	logicErrBlockedAfterOkState
	logicErrLengthMismatch
	logicErrBrokenLock
)

// breaksLock reports whether detecting this error should set the
// scheduler's sticky "broken" bit (as opposed to merely panicking once,
// which is what a result-length mismatch and the already-broken case do).
func (k strategyLogicErrorKind) breaksLock() bool {
	switch k {
	case logicErrConcurrentReadAndWrite, logicErrConcurrentMultipleWrites, logicErrBlockedAfterOkState:
		return true
	default:
		return false
	}
}

// StrategyLogicError is panicked by the Queue scheduler (not returned as a
// value) when a Strategy violates its contract - see the Strategy doc
// comment. ConcurrentReadAndWrite, ConcurrentMultipleWrites and
// BlockedAfterOkState mark the RwLock broken: every later acquire on the
// same lock panics with ErrBrokenLock until the process restarts. release
// is always best-effort around a broken lock, so guards still unwind
// cleanly.
type StrategyLogicError struct {
	kind strategyLogicErrorKind
}

// Error implements the error interface.
func (e *StrategyLogicError) Error() string {
	switch e.kind {
	case logicErrConcurrentReadAndWrite:
		return "synclock: strategy wanted to admit a writer and reader at the same time"
	case logicErrConcurrentMultipleWrites:
		return "synclock: strategy wanted to admit two or more writers at the same time"
	case logicErrBlockedAfterOkState:
		return "synclock: strategy tried to re-block an already-admitted waiter"
	case logicErrLengthMismatch:
		return "synclock: strategy returned a different number of results than waiters"
	default:
		return "synclock: broken lock: a previous strategy invocation violated its contract"
	}
}

var (
	// ErrConcurrentReadAndWrite: the strategy admitted a reader and a
	// writer at the same time.
	ErrConcurrentReadAndWrite = &StrategyLogicError{kind: logicErrConcurrentReadAndWrite}
	// ErrConcurrentMultipleWrites: the strategy admitted two or more
	// writers at the same time.
	ErrConcurrentMultipleWrites = &StrategyLogicError{kind: logicErrConcurrentMultipleWrites}
	// ErrBlockedAfterOkState: the strategy re-blocked an already-admitted
	// waiter.
	ErrBlockedAfterOkState = &StrategyLogicError{kind: logicErrBlockedAfterOkState}
	// ErrStrategyLengthMismatch: the strategy's result slice didn't match
	// the number of waiters passed in.
	ErrStrategyLengthMismatch = &StrategyLogicError{kind: logicErrLengthMismatch}
	// ErrBrokenLock: an acquire was attempted after the lock was already
	// broken by a prior logic error.
	ErrBrokenLock = &StrategyLogicError{kind: logicErrBrokenLock}
)

type queueEntry struct {
	handle Handle
	method Method
	state  State
}

// queueState is the data a Queue's internal spin mutex protects. Critical
// sections over it must stay short: no parking happens while it's held.
type queueState struct {
	entries  []*queueEntry
	strategy Strategy
	broken   bool
}

func (qs *queueState) assertNotBroken() {
	if qs.broken {
		panic(ErrBrokenLock)
	}
}

func (qs *queueState) handleLogicErr(kind strategyLogicErrorKind) {
	if kind.breaksLock() {
		qs.broken = true
	}
	panic(sentinelFor(kind))
}

// sentinelFor returns the exported *StrategyLogicError value for kind, so
// that panic(sentinelFor(...)) lets callers use errors.Is against the
// package's exported Err* variables instead of a freshly-allocated value.
func sentinelFor(kind strategyLogicErrorKind) *StrategyLogicError {
	switch kind {
	case logicErrConcurrentReadAndWrite:
		return ErrConcurrentReadAndWrite
	case logicErrConcurrentMultipleWrites:
		return ErrConcurrentMultipleWrites
	case logicErrBlockedAfterOkState:
		return ErrBlockedAfterOkState
	case logicErrLengthMismatch:
		return ErrStrategyLengthMismatch
	default:
		return ErrBrokenLock
	}
}

// setAndEnforcePreconditions zips entries with newStates and enforces
// invariants I1-I3 from the Queue scheduler's state machine: at most one Ok
// writer, never an Ok writer alongside an Ok reader, and no previously-Ok
// entry reverting to Blocked (except currentID's own entry, which may
// legitimately be held Blocked on its first evaluation).
func (qs *queueState) setAndEnforcePreconditions(currentID HandleID, newStates []State) strategyLogicErrorKind {
	var (
		errBlockedAfterOk     bool
		errConcurrentRW       bool
		errConcurrentMultiple bool
		hasOkRead             bool
		hasOkWrite            bool
	)

	for i, entry := range qs.entries {
		newState := newStates[i]

		if entry.handle.ID() != currentID && entry.state.IsOk() && newState.IsBlocked() {
			errBlockedAfterOk = true
			newState = StateOk
		}

		if newState.IsOk() {
			switch entry.method {
			case MethodRead:
				errConcurrentRW = errConcurrentRW || hasOkWrite
				hasOkRead = true
			case MethodWrite:
				errConcurrentRW = errConcurrentRW || hasOkRead
				errConcurrentMultiple = errConcurrentMultiple || hasOkWrite
				hasOkWrite = true
			}

			if errConcurrentRW || errConcurrentMultiple {
				newState = StateBlocked
			}
		}

		entry.state = newState
	}

	switch {
	case errBlockedAfterOk:
		return logicErrBlockedAfterOkState
	case errConcurrentRW:
		return logicErrConcurrentReadAndWrite
	case errConcurrentMultiple:
		return logicErrConcurrentMultipleWrites
	default:
		return -1
	}
}

// runQueueLogic runs the Strategy over the current queue, enforces its
// preconditions, and unparks every non-current entry whose state is Ok
// afterwards (whether admitted by this run or an earlier one).
func (qs *queueState) runQueueLogic(currentID HandleID) {
	snapshot := make([]Entry, len(qs.entries))
	for i, entry := range qs.entries {
		snapshot[i] = Entry{ID: entry.handle.ID(), Method: entry.method}
	}

	results := qs.strategy(snapshot)
	if len(results) != len(snapshot) {
		// Not marked broken: a length mismatch is a property of the
		// strategy function itself, so it will recur identically on the
		// very next call regardless of queue contents.
		panic(ErrStrategyLengthMismatch)
	}

	if kind := qs.setAndEnforcePreconditions(currentID, results); kind != -1 {
		qs.handleLogicErr(kind)
	}

	for _, entry := range qs.entries {
		if entry.handle.ID() != currentID && entry.state.IsOk() {
			entry.handle.Unpark()
		}
	}
}

func (qs *queueState) find(id HandleID) (*queueEntry, int) {
	for i, entry := range qs.entries {
		if entry.handle.ID() == id {
			return entry, i
		}
	}
	return nil, -1
}

func (qs *queueState) poll(id HandleID) State {
	entry, _ := qs.find(id)
	if entry == nil {
		// Entries are only ever removed via tryAcquire's rollback or
		// release, both of which run under this same critical section, so
		// a live handle always has a corresponding entry while polling.
		panic("synclock: polled an id with no queue entry")
	}
	return entry.state
}

func (qs *queueState) doAcquire(method Method, handle Handle) State {
	qs.assertNotBroken()
	qs.entries = append(qs.entries, &queueEntry{handle: handle, method: method, state: StateBlocked})
	qs.runQueueLogic(handle.ID())
	return qs.poll(handle.ID())
}

// Queue is the FIFO scheduler backing RwLock: it mediates the caller's
// Strategy over the ordered list of waiters, parks goroutines that remain
// blocked, and enforces the admission invariants a Strategy alone cannot
// guarantee. See the package doc comment for an overview, and Acquire,
// TryAcquire and Release for each step.
type Queue struct {
	inner     *Mutex[queueState, BareThreadEnv]
	newHandle func() Handle
}

// NewQueue returns a Queue that evaluates strategy to admit waiters, using
// newHandle to mint a fresh Handle for each acquiring goroutine.
func NewQueue(strategy Strategy, newHandle func() Handle) *Queue {
	return &Queue{
		inner:     NewCoreMutex(queueState{strategy: strategy}),
		newHandle: newHandle,
	}
}

func (q *Queue) critical(f func(*queueState)) {
	guard, _ := q.inner.Lock()
	defer guard.Unlock()
	f(guard.Value())
}

// Acquire blocks until method is admitted, returning the Handle that now
// holds the lease. Park/poll repeats across spurious wakeups: admission is
// always re-checked under the scheduler's mutex, never inferred from a
// Park return alone.
func (q *Queue) Acquire(method Method) Handle {
	handle := q.newHandle()
	var state State
	q.critical(func(qs *queueState) {
		state = qs.doAcquire(method, handle)
	})

	for state.IsBlocked() {
		handle.Park()
		q.critical(func(qs *queueState) {
			state = qs.poll(handle.ID())
		})
	}
	return handle
}

// TryAcquire attempts to admit method without blocking. On failure it
// leaves the queue in the same externally-visible state as if the call had
// never happened.
func (q *Queue) TryAcquire(method Method) (Handle, bool) {
	handle := q.newHandle()
	var state State
	q.critical(func(qs *queueState) {
		state = qs.doAcquire(method, handle)
		if state.IsBlocked() {
			// doAcquire always appends an entry regardless of outcome;
			// since we're only trying, roll that back. It must be the
			// last entry, since doAcquire just pushed it.
			last := qs.entries[len(qs.entries)-1]
			if last.handle.ID() != handle.ID() {
				panic("synclock: tryAcquire rollback found the wrong entry")
			}
			qs.entries = qs.entries[:len(qs.entries)-1]
		}
	})

	if state.IsBlocked() {
		return nil, false
	}
	return handle, true
}

// Release removes handle's entry from the queue and, unless the lock is
// already broken, re-runs the strategy over the shorter queue and unparks
// any newly-admitted waiters. Best-effort on a broken lock: it never
// panics, so guard drops always complete.
func (q *Queue) Release(handle Handle) {
	q.critical(func(qs *queueState) {
		_, idx := qs.find(handle.ID())
		if idx >= 0 {
			qs.entries = append(qs.entries[:idx], qs.entries[idx+1:]...)
		}
		if !qs.broken {
			if idx < 0 {
				panic("synclock: released a handle with no queue entry")
			}
			qs.runQueueLogic(handle.ID())
		}
	})
}
