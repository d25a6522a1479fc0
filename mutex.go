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

// Mutex is a two-state (unlocked/locked) spinning mutex with poisoning. T is
// the guarded payload type; E is the thread environment used to yield
// between spin attempts - BareThreadEnv for freestanding use (CoreMutex) or
// GoroutineThreadEnv for ordinary goroutine-hosted use (NewMutex).
//
// Unlike sync.Mutex, a MutexGuard may be released from a goroutine other
// than the one that acquired it: Mutex only tracks whether it is locked, not
// which goroutine holds it.
type Mutex[T any, E ThreadEnv] struct {
	locked   atomic.Bool
	poisoned atomic.Bool
	data     T
}

// NewMutex returns a new goroutine-hosted Mutex guarding value.
func NewMutex[T any](value T) *Mutex[T, GoroutineThreadEnv] {
	return &Mutex[T, GoroutineThreadEnv]{data: value}
}

// NewCoreMutex returns a new bare-environment Mutex guarding value, suitable
// for use in process-wide statics (it never blocks and never allocates
// beyond the struct itself).
func NewCoreMutex[T any](value T) *Mutex[T, BareThreadEnv] {
	return &Mutex[T, BareThreadEnv]{data: value}
}

// MutexGuard is the scoped lease returned by Mutex.Lock/TryLock. The zero
// value is not usable; construct one only via Mutex's methods. Callers must
// release it with a deferred call to Unlock, e.g.:
//
//	guard, _ := m.Lock()
//	defer guard.Unlock()
//
// The deferred-call requirement is what lets Unlock detect, via recover,
// whether it is running while the calling goroutine is unwinding - Go has
// no equivalent of an unconditional destructor, so this is the mechanism
// that answers the "poison on panicking release" requirement.
type MutexGuard[T any, E ThreadEnv] struct {
	lock *Mutex[T, E]
	data *T
}

// Value returns a pointer to the guarded data. Valid until Unlock is called.
func (g *MutexGuard[T, E]) Value() *T {
	return g.data
}

// Unlock releases the mutex. Must be called via a deferred statement
// (`defer guard.Unlock()`) for panic-triggered poisoning to be detected; see
// the MutexGuard doc comment.
func (g *MutexGuard[T, E]) Unlock() {
	r := recover()
	g.lock.releaseLocker(r != nil)
	if r != nil {
		panic(r)
	}
}

func (m *Mutex[T, E]) releaseLocker(poison bool) {
	m.locked.Store(false)
	if poison {
		m.poisoned.Store(true)
	}
}

func (m *Mutex[T, E]) tryAcquireLocker() bool {
	return m.locked.CompareAndSwap(false, true)
}

func (m *Mutex[T, E]) doLock() (*MutexGuard[T, E], *PoisonError[*MutexGuard[T, E]]) {
	guard := &MutexGuard[T, E]{lock: m, data: &m.data}
	if m.IsPoisoned() {
		return guard, NewPoisonError(guard)
	}
	return guard, nil
}

// Lock blocks until the mutex is acquired, spinning with a yield hint
// between attempts. The returned *PoisonError, if non-nil, wraps the same
// guard - the caller opts in to using it despite the poisoning by reading
// through the error.
func (m *Mutex[T, E]) Lock() (*MutexGuard[T, E], *PoisonError[*MutexGuard[T, E]]) {
	var env E
	for !m.tryAcquireLocker() {
		env.YieldNow()
	}
	return m.doLock()
}

// TryLock attempts to acquire the mutex without blocking. It returns
// ErrWouldBlock if the lock is currently held, or a *PoisonError wrapping
// the guard if a prior holder panicked while holding it.
func (m *Mutex[T, E]) TryLock() (*MutexGuard[T, E], error) {
	if !m.tryAcquireLocker() {
		return nil, ErrWouldBlock
	}
	guard, poison := m.doLock()
	if poison != nil {
		return nil, poison
	}
	return guard, nil
}

// IsPoisoned reports whether a previous holder panicked while holding the
// mutex.
func (m *Mutex[T, E]) IsPoisoned() bool {
	return m.poisoned.Load()
}

// ClearPoison resets the poison bit, allowing future acquirers to treat the
// data as trustworthy again.
func (m *Mutex[T, E]) ClearPoison() {
	m.poisoned.Store(false)
}

// GetMut returns the guarded data directly, bypassing the lock: valid only
// when the caller has exclusive access to the Mutex itself (e.g. it is not
// shared across goroutines at this point).
func (m *Mutex[T, E]) GetMut() (*T, *PoisonError[*T]) {
	_, poison := wrapIfPoisoned(m.IsPoisoned(), &m.data)
	return &m.data, poison
}

// IntoInner consumes the mutex and returns the guarded value.
func (m *Mutex[T, E]) IntoInner() (T, *PoisonError[T]) {
	return wrapIfPoisoned(m.IsPoisoned(), m.data)
}

// CoreMutex is a Mutex backed by BareThreadEnv, usable in process-wide
// statics and environments without a goroutine scheduler to yield to.
type CoreMutex[T any] = Mutex[T, BareThreadEnv]
