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

import "errors"

// PoisonError wraps the payload that was in transit when a lock observed
// that a prior holder panicked while holding it. The payload is usually a
// guard, giving the caller the option to use potentially-inconsistent data
// rather than being forced to abandon it.
type PoisonError[T any] struct {
	data T
}

// NewPoisonError wraps data as a PoisonError.
func NewPoisonError[T any](data T) *PoisonError[T] {
	return &PoisonError[T]{data: data}
}

// Error implements the error interface.
func (e *PoisonError[T]) Error() string {
	return "poisoned lock: another goroutine panicked while holding it"
}

// Into returns the wrapped payload.
func (e *PoisonError[T]) Into() T {
	return e.data
}

// ErrWouldBlock is returned by non-blocking acquire attempts ("try"
// variants) when the lock could not be acquired immediately. The data
// guarded by the lock is unaffected; the caller may retry.
var ErrWouldBlock = errors.New("synclock: operation would block")

// TryLockError is the error type returned by the non-blocking acquires of
// RwLock and PrimitiveRwLock (Mutex.TryLock returns ErrWouldBlock or a
// *PoisonError directly). It either wraps ErrWouldBlock or wraps a
// *PoisonError[T] - use errors.As to extract the poison payload.
type TryLockError[T any] struct {
	poison *PoisonError[T]
}

// Error implements the error interface.
func (e *TryLockError[T]) Error() string {
	if e.poison != nil {
		return e.poison.Error()
	}
	return ErrWouldBlock.Error()
}

// Unwrap allows errors.Is(err, ErrWouldBlock) to succeed for the non-poison
// case, and errors.As(err, &poisonErr) to succeed for the poison case.
func (e *TryLockError[T]) Unwrap() error {
	if e.poison != nil {
		return e.poison
	}
	return ErrWouldBlock
}

// Poisoned reports whether this error wraps a PoisonError, and returns it.
func (e *TryLockError[T]) Poisoned() (*PoisonError[T], bool) {
	return e.poison, e.poison != nil
}

func wouldBlockError[T any]() *TryLockError[T] {
	return &TryLockError[T]{}
}

func poisonedTryError[T any](data T) *TryLockError[T] {
	return &TryLockError[T]{poison: NewPoisonError(data)}
}

// ShouldBlock is the two-valued admission signal returned by a RwLockHook:
// Ok permits the caller to proceed, Block vetoes the attempt.
type ShouldBlock int

const (
	// ShouldBlockOk permits the attempt to proceed.
	ShouldBlockOk ShouldBlock = iota
	// ShouldBlockBlock vetoes the attempt.
	ShouldBlockBlock
)

// toTryError translates a ShouldBlock veto into ErrWouldBlock, or nil if the
// hook permitted the attempt.
func (s ShouldBlock) toTryError() error {
	if s == ShouldBlockBlock {
		return ErrWouldBlock
	}
	return nil
}

// wrapIfPoisoned is the small helper every primitive in this package uses to
// turn a (poisoned bool, value) pair into the Go analogue of
// std::sync::LockResult: a plain value, or a *PoisonError[T] wrapping it.
func wrapIfPoisoned[T any](poisoned bool, data T) (T, *PoisonError[T]) {
	if poisoned {
		return data, NewPoisonError(data)
	}
	return data, nil
}
