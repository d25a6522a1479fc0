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

// Package synclock implements a family of synchronization primitives - a
// spinning mutex and a strategy-driven reader/writer lock - built atop
// lock-free atomic state machines with pluggable thread-environment
// back-ends.
//
// ## Overview
//
// Two primitives are exported:
//
//   - Mutex, a two-state (unlocked/locked) spinning mutex with poisoning,
//     comparable to sync.Mutex except that its guard may be released from a
//     goroutine other than the one that acquired it, and that a panic while
//     a guard is held poisons the lock for future acquirers.
//
//   - RwLock, a reader/writer lock whose admission policy is supplied by the
//     caller as a Strategy: a pure function over the ordered queue of
//     waiters that decides which of them may proceed. The default strategy,
//     FairStrategy, admits a run of adjacent readers together and serializes
//     writers in arrival order, so that no writer is starved by a stream of
//     late-arriving readers.
//
// A simpler counter-based variant, PrimitiveRwLock, is also provided for
// callers that don't need a pluggable admission policy: it tracks a reader
// count and an "exclusive writer present" sentinel in a single atomic
// register updated by compare-and-swap (there is no separate spin-lock),
// with an extensible Hook invoked at the lock/unlock boundaries.
//
// ## Queueing
//
// RwLock's scheduler enqueues every acquiring goroutine, invokes the
// Strategy under a short critical section, and parks goroutines that remain
// blocked after the strategy runs. The scheduler - not the Strategy itself -
// is responsible for catching logic errors a misbehaving Strategy might
// otherwise introduce: admitting a reader and a writer together, admitting
// two writers together, or revoking an admission that was already granted.
// A Strategy that does any of these breaks the lock: the current acquire
// panics, and every subsequent acquire attempt on the same RwLock panics
// until the process restarts (a broken RwLock has no recovery path).
//
// ## Thread environments
//
// Mutex and PrimitiveRwLock are parameterized over a ThreadEnv, used only to
// decide how to spin (YieldNow) between CAS attempts; RwLock's scheduler
// goes one step further and needs waiter identity, so it parks and unparks
// a full Handle, which embeds ThreadEnv and adds ID, Park and Unpark. Two
// Handle implementations ship with this package: BareHandle, which never
// blocks (Park and YieldNow are spin hints, Unpark is a no-op), and
// GoroutineHandle, which backs Park/Unpark with a per-handle buffered
// channel used as a park token. Panicking always reports false on both:
// unlike a platform thread, a goroutine has no way to query "is the current
// unwind still in progress" from outside the panicking call stack, so
// poisoning is instead detected at each guard's Unlock call site via a
// directly-deferred recover - see DESIGN.md.
package synclock
