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

// RwLockHook is PrimitiveRwLock's extension point: it gets a veto over every
// acquire attempt and a notification after every release. Unlike RwLock's
// Strategy, a hook cannot reorder waiters - it can only allow or block the
// single attempt in front of it, which is why PrimitiveRwLock never needs a
// waiter queue.
//
// TryRead/TryWrite are consulted on every spin attempt, not just the first:
// a hook implementing e.g. a rate limit will be asked again on each retry
// until it returns ShouldBlockOk or the caller gives up (TryRead/TryWrite on
// the lock itself).
type RwLockHook interface {
	// TryRead is consulted before each attempt to acquire a read lease.
	TryRead() ShouldBlock
	// TryWrite is consulted before each attempt to acquire a write lease.
	TryWrite() ShouldBlock
	// AfterRead runs after a read lease is released.
	AfterRead()
	// AfterWrite runs after a write lease is released.
	AfterWrite()
}

// NoopHook is the default RwLockHook: it never vetoes an attempt and never
// does anything on release.
type NoopHook struct{}

// TryRead always permits the attempt.
func (NoopHook) TryRead() ShouldBlock { return ShouldBlockOk }

// TryWrite always permits the attempt.
func (NoopHook) TryWrite() ShouldBlock { return ShouldBlockOk }

// AfterRead does nothing.
func (NoopHook) AfterRead() {}

// AfterWrite does nothing.
func (NoopHook) AfterWrite() {}

var _ RwLockHook = NoopHook{}
