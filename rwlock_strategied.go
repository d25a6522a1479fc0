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

import "sync/atomic"

// RwLock is a reader/writer lock whose admission policy is delegated to a
// Strategy run by a Queue scheduler, rather than hard-coded. The default
// constructor, New, uses FairStrategy; use NewWithStrategy to supply a
// different one.
//
// Unlike PrimitiveRwLock, RwLock preserves FIFO arrival order among waiters
// and detects strategies that violate the scheduler's invariants (see
// StrategyLogicError) rather than silently misbehaving.
type RwLock[T any] struct {
	queue    *Queue
	poisoned atomic.Bool
	data     T
}

// New returns a RwLock guarding value, admitting waiters with FairStrategy
// and minting GoroutineHandles.
func New[T any](value T) *RwLock[T] {
	return NewWithStrategy(value, FairStrategy)
}

// NewWithStrategy returns a RwLock guarding value, admitting waiters
// according to strategy.
func NewWithStrategy[T any](value T, strategy Strategy) *RwLock[T] {
	return &RwLock[T]{
		queue: NewQueue(strategy, func() Handle { return NewGoroutineHandle() }),
		data:  value,
	}
}

// ReadGuard is the scoped lease returned by RwLock.Read/TryRead. Must be
// released with a deferred call to Unlock.
type ReadGuard[T any] struct {
	lock   *RwLock[T]
	handle Handle
	data   *T
}

// Value returns a pointer to the guarded data, valid until Unlock.
func (g *ReadGuard[T]) Value() *T { return g.data }

// Unlock releases the read lease, letting the scheduler re-evaluate its
// strategy over the remaining waiters.
func (g *ReadGuard[T]) Unlock() {
	g.lock.queue.Release(g.handle)
}

// WriteGuard is the scoped lease returned by RwLock.Write/TryWrite. Must be
// released with a deferred call to Unlock for poison-on-panic detection to
// work, e.g.:
//
//	guard, _ := lock.Write()
//	defer guard.Unlock()
type WriteGuard[T any] struct {
	lock   *RwLock[T]
	handle Handle
	data   *T
}

// Value returns a pointer to the guarded data, valid until Unlock.
func (g *WriteGuard[T]) Value() *T { return g.data }

// Unlock releases the write lease. If called directly from a deferred
// statement while the calling goroutine is unwinding from a panic, it
// poisons the lock before the scheduler re-evaluates its strategy, and
// re-panics with the original value so the panic is never swallowed.
func (g *WriteGuard[T]) Unlock() {
	r := recover()
	if r != nil {
		g.lock.poisoned.Store(true)
	}
	g.lock.queue.Release(g.handle)
	if r != nil {
		panic(r)
	}
}

// Read blocks until shared read access is admitted. The returned
// *PoisonError, if non-nil, wraps the same guard - reading through it is
// the caller's explicit opt-in to using possibly-inconsistent data. Reading
// never itself poisons the lock, even if the caller's use of the guard
// panics: only a write can poison.
func (l *RwLock[T]) Read() (*ReadGuard[T], *PoisonError[*ReadGuard[T]]) {
	handle := l.queue.Acquire(MethodRead)
	guard := &ReadGuard[T]{lock: l, handle: handle, data: &l.data}
	if l.IsPoisoned() {
		return guard, NewPoisonError(guard)
	}
	return guard, nil
}

// TryRead attempts to admit a reader without blocking.
func (l *RwLock[T]) TryRead() (*ReadGuard[T], error) {
	handle, ok := l.queue.TryAcquire(MethodRead)
	if !ok {
		return nil, wouldBlockError[*ReadGuard[T]]()
	}
	guard := &ReadGuard[T]{lock: l, handle: handle, data: &l.data}
	if l.IsPoisoned() {
		return nil, poisonedTryError[*ReadGuard[T]](guard)
	}
	return guard, nil
}

// Write blocks until exclusive write access is admitted.
func (l *RwLock[T]) Write() (*WriteGuard[T], *PoisonError[*WriteGuard[T]]) {
	handle := l.queue.Acquire(MethodWrite)
	guard := &WriteGuard[T]{lock: l, handle: handle, data: &l.data}
	if l.IsPoisoned() {
		return guard, NewPoisonError(guard)
	}
	return guard, nil
}

// TryWrite attempts to admit a writer without blocking.
func (l *RwLock[T]) TryWrite() (*WriteGuard[T], error) {
	handle, ok := l.queue.TryAcquire(MethodWrite)
	if !ok {
		return nil, wouldBlockError[*WriteGuard[T]]()
	}
	guard := &WriteGuard[T]{lock: l, handle: handle, data: &l.data}
	if l.IsPoisoned() {
		return nil, poisonedTryError[*WriteGuard[T]](guard)
	}
	return guard, nil
}

// IsPoisoned reports whether a previous write holder panicked while holding
// the lock.
func (l *RwLock[T]) IsPoisoned() bool {
	return l.poisoned.Load()
}

// ClearPoison resets the poison bit.
func (l *RwLock[T]) ClearPoison() {
	l.poisoned.Store(false)
}

// GetMut returns the guarded data directly, bypassing the scheduler: valid
// only when the caller has exclusive access to the RwLock itself.
func (l *RwLock[T]) GetMut() (*T, *PoisonError[*T]) {
	_, poison := wrapIfPoisoned(l.IsPoisoned(), &l.data)
	return &l.data, poison
}

// IntoInner consumes the lock and returns the guarded value.
func (l *RwLock[T]) IntoInner() (T, *PoisonError[T]) {
	return wrapIfPoisoned(l.IsPoisoned(), l.data)
}
