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

// rwWriterLocked is the sentinel register value meaning "a writer holds the
// lock". Any other value is the number of active readers (0 meaning free).
// A read attempt is refused once the count has reached rwWriterLocked-1, so
// the reader count never runs into the sentinel. This is the same
// packed-register technique this package's spin mutex CAS loop uses,
// collapsed to the two states a reader/writer count needs: no separate bit
// offsets are required because "writer" and "N readers" are mutually
// exclusive by construction.
const rwWriterLocked uint64 = ^uint64(0)

// PrimitiveRwLock is a reader/writer lock whose admission order is whatever
// falls out of CAS contention - unlike RwLock, it keeps no waiter queue and
// gives no fairness guarantee between readers and writers. It trades that
// guarantee for a much smaller footprint: a single packed atomic register.
//
// H is a RwLockHook, consulted on every acquire attempt and notified after
// every release; use NoopHook for no extension behavior.
type PrimitiveRwLock[T any, E ThreadEnv, H RwLockHook] struct {
	state    atomic.Uint64
	poisoned atomic.Bool
	hook     H
	data     T
}

// NewPrimitiveRwLock returns a goroutine-hosted PrimitiveRwLock guarding
// value with no hook behavior.
func NewPrimitiveRwLock[T any](value T) *PrimitiveRwLock[T, GoroutineThreadEnv, NoopHook] {
	return &PrimitiveRwLock[T, GoroutineThreadEnv, NoopHook]{data: value}
}

// NewPrimitiveRwLockWithHook returns a PrimitiveRwLock guarding value whose
// acquire attempts are mediated by hook.
func NewPrimitiveRwLockWithHook[T any, E ThreadEnv, H RwLockHook](value T, hook H) *PrimitiveRwLock[T, E, H] {
	return &PrimitiveRwLock[T, E, H]{hook: hook, data: value}
}

// PrimitiveReadGuard is the scoped lease returned by
// PrimitiveRwLock.Read/TryRead. Must be released with a deferred call to
// Unlock.
type PrimitiveReadGuard[T any, E ThreadEnv, H RwLockHook] struct {
	lock *PrimitiveRwLock[T, E, H]
	data *T
}

// Value returns a pointer to the guarded data, valid until Unlock.
func (g *PrimitiveReadGuard[T, E, H]) Value() *T { return g.data }

// Unlock releases the read lease and runs the lock's hook.AfterRead.
func (g *PrimitiveReadGuard[T, E, H]) Unlock() {
	g.lock.releaseRead()
	g.lock.hook.AfterRead()
}

// PrimitiveWriteGuard is the scoped lease returned by
// PrimitiveRwLock.Write/TryWrite. Must be released with a deferred call to
// Unlock, e.g.:
//
//	guard, _ := lock.Write()
//	defer guard.Unlock()
type PrimitiveWriteGuard[T any, E ThreadEnv, H RwLockHook] struct {
	lock *PrimitiveRwLock[T, E, H]
	data *T
}

// Value returns a pointer to the guarded data, valid until Unlock.
func (g *PrimitiveWriteGuard[T, E, H]) Value() *T { return g.data }

// Unlock releases the write lease and runs the lock's hook.AfterWrite. If
// called directly from a deferred statement while unwinding from a panic,
// it poisons the lock first, then re-panics with the original value.
func (g *PrimitiveWriteGuard[T, E, H]) Unlock() {
	r := recover()
	g.lock.releaseWrite(r != nil)
	g.lock.hook.AfterWrite()
	if r != nil {
		panic(r)
	}
}

func (l *PrimitiveRwLock[T, E, H]) tryAcquireRead() bool {
	for {
		old := l.state.Load()
		if old >= rwWriterLocked-1 {
			return false
		}
		if l.state.CompareAndSwap(old, old+1) {
			return true
		}
	}
}

func (l *PrimitiveRwLock[T, E, H]) releaseRead() {
	for {
		old := l.state.Load()
		if l.state.CompareAndSwap(old, old-1) {
			return
		}
	}
}

func (l *PrimitiveRwLock[T, E, H]) tryAcquireWrite() bool {
	return l.state.CompareAndSwap(0, rwWriterLocked)
}

func (l *PrimitiveRwLock[T, E, H]) releaseWrite(poison bool) {
	l.state.Store(0)
	if poison {
		l.poisoned.Store(true)
	}
}

// IsPoisoned reports whether a previous write holder panicked while holding
// the lock.
func (l *PrimitiveRwLock[T, E, H]) IsPoisoned() bool {
	return l.poisoned.Load()
}

// ClearPoison resets the poison bit.
func (l *PrimitiveRwLock[T, E, H]) ClearPoison() {
	l.poisoned.Store(false)
}

// Read blocks, consulting the hook and spinning on the packed register,
// until a read lease is admitted.
func (l *PrimitiveRwLock[T, E, H]) Read() (*PrimitiveReadGuard[T, E, H], *PoisonError[*PrimitiveReadGuard[T, E, H]]) {
	var env E
	for l.hook.TryRead() == ShouldBlockBlock || !l.tryAcquireRead() {
		env.YieldNow()
	}
	guard := &PrimitiveReadGuard[T, E, H]{lock: l, data: &l.data}
	if l.IsPoisoned() {
		return guard, NewPoisonError(guard)
	}
	return guard, nil
}

// TryRead attempts to admit a reader without blocking.
func (l *PrimitiveRwLock[T, E, H]) TryRead() (*PrimitiveReadGuard[T, E, H], error) {
	if l.hook.TryRead() == ShouldBlockBlock || !l.tryAcquireRead() {
		return nil, wouldBlockError[*PrimitiveReadGuard[T, E, H]]()
	}
	guard := &PrimitiveReadGuard[T, E, H]{lock: l, data: &l.data}
	if l.IsPoisoned() {
		return nil, poisonedTryError[*PrimitiveReadGuard[T, E, H]](guard)
	}
	return guard, nil
}

// Write blocks, consulting the hook and spinning on the packed register,
// until a write lease is admitted.
func (l *PrimitiveRwLock[T, E, H]) Write() (*PrimitiveWriteGuard[T, E, H], *PoisonError[*PrimitiveWriteGuard[T, E, H]]) {
	var env E
	for l.hook.TryWrite() == ShouldBlockBlock || !l.tryAcquireWrite() {
		env.YieldNow()
	}
	guard := &PrimitiveWriteGuard[T, E, H]{lock: l, data: &l.data}
	if l.IsPoisoned() {
		return guard, NewPoisonError(guard)
	}
	return guard, nil
}

// TryWrite attempts to admit a writer without blocking.
func (l *PrimitiveRwLock[T, E, H]) TryWrite() (*PrimitiveWriteGuard[T, E, H], error) {
	if l.hook.TryWrite() == ShouldBlockBlock || !l.tryAcquireWrite() {
		return nil, wouldBlockError[*PrimitiveWriteGuard[T, E, H]]()
	}
	guard := &PrimitiveWriteGuard[T, E, H]{lock: l, data: &l.data}
	if l.IsPoisoned() {
		return nil, poisonedTryError[*PrimitiveWriteGuard[T, E, H]](guard)
	}
	return guard, nil
}

// GetMut returns the guarded data directly, bypassing the lock: valid only
// when the caller has exclusive access to the PrimitiveRwLock itself.
func (l *PrimitiveRwLock[T, E, H]) GetMut() (*T, *PoisonError[*T]) {
	_, poison := wrapIfPoisoned(l.IsPoisoned(), &l.data)
	return &l.data, poison
}

// IntoInner consumes the lock and returns the guarded value.
func (l *PrimitiveRwLock[T, E, H]) IntoInner() (T, *PoisonError[T]) {
	return wrapIfPoisoned(l.IsPoisoned(), l.data)
}
