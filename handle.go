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

import (
	"runtime"
)

// HandleID identifies a Handle. Fresh handles produce pairwise-distinct ids;
// id 0 is reserved for the "dumb" handle returned by DumbBareHandle and
// DumbGoroutineHandle.
type HandleID uint64

// DumbHandleID is the sentinel id carried by every "dumb" handle.
const DumbHandleID HandleID = 0

// handleCounter is the process-wide monotonic counter backing HandleID
// allocation. It is itself gated by this package's unhooked spin mutex
// rather than the strategied RwLock, to avoid a circular dependency between
// handle allocation and lock acquisition.
var handleCounter = NewCoreMutex[uint64](1)

func nextHandleID() HandleID {
	guard, _ := handleCounter.Lock()
	defer guard.Unlock()
	if *guard.Value() == ^uint64(0) {
		panic("synclock: exhausted HandleID allocation")
	}
	id := *guard.Value()
	*guard.Value()++
	return HandleID(id)
}

// ThreadEnv abstracts the spin-loop yield hint and unwind-in-progress query
// used by Mutex and PrimitiveRwLock, which don't need waiter identity and so
// don't need a full Handle.
type ThreadEnv interface {
	// YieldNow hints to the scheduler that the calling goroutine is spinning
	// and would like to let another runnable goroutine proceed.
	YieldNow()
	// Panicking reports whether the calling thread environment believes
	// itself to be unwinding. Implementations that cannot answer this
	// outside of a deferred recover (every goroutine-backed environment in
	// this package) return false; see GoroutineThreadEnv.
	Panicking() bool
}

// BareThreadEnv never blocks: YieldNow is a pure CPU spin hint and Panicking
// always reports false. It backs BareHandle and the package's own handle
// counter mutex, so that handle allocation never depends on a blocking
// primitive.
type BareThreadEnv struct{}

// YieldNow hints the scheduler via runtime.Gosched.
func (BareThreadEnv) YieldNow() { runtime.Gosched() }

// Panicking always returns false for the bare environment.
func (BareThreadEnv) Panicking() bool { return false }

// GoroutineThreadEnv backs goroutine-hosted primitives. YieldNow delegates
// to runtime.Gosched. Panicking always returns false here too: Go has no
// analogue of Rust's std::thread::panicking(), which can be queried from
// anywhere on the unwinding thread. Poisoning a write lock on panic is
// instead detected at the guard's Unlock call site via recover, which only
// works when Unlock is invoked directly from a deferred statement - see
// WriteGuard.Unlock.
type GoroutineThreadEnv struct{}

// YieldNow hints the scheduler via runtime.Gosched.
func (GoroutineThreadEnv) YieldNow() { runtime.Gosched() }

// Panicking always returns false; see the GoroutineThreadEnv doc comment.
func (GoroutineThreadEnv) Panicking() bool { return false }

// Handle is the core primitive this package uses to interact with a waiting
// actor, independent of the underlying runtime. Implementations must
// guarantee:
//
//   - fresh handles produced by a "new"-style constructor carry pairwise
//     distinct ids;
//   - "dumb" constructors always carry HandleID DumbHandleID;
//   - Unpark is idempotent and non-blocking, and releases a pending Park on
//     the same handle (if any);
//   - Unpark on a handle with no pending Park never blocks; it may leave a
//     single wakeup behind so that the next Park returns at once (as
//     GoroutineHandle does), and repeated Unparks leave no more than one.
//
// Park/Unpark correctness is a logic contract, not a memory-safety one:
// admission state is always re-checked under the scheduler's own mutex, so a
// missed or spurious wakeup merely costs an extra poll, never an invariant
// violation.
type Handle interface {
	ThreadEnv
	// ID returns this handle's identity.
	ID() HandleID
	// Park blocks the calling goroutine until a matching Unpark arrives, or
	// returns spuriously; callers must re-check their condition in a loop.
	Park()
	// Unpark releases one pending Park on this handle. Non-blocking,
	// idempotent.
	Unpark()
}

// BareHandle is the spin-only Handle backend: Park and YieldNow are CPU
// spin hints, and Unpark is a no-op, matching BareThreadEnv. Suitable for
// bare-metal or freestanding environments with no thread-parking facility.
type BareHandle struct {
	id HandleID
}

// NewBareHandle returns a fresh BareHandle with a unique id.
func NewBareHandle() *BareHandle {
	return &BareHandle{id: nextHandleID()}
}

// DumbBareHandle returns an anonymous BareHandle carrying DumbHandleID, for
// callers that only need YieldNow/Panicking and have no identity to offer.
func DumbBareHandle() *BareHandle {
	return &BareHandle{id: DumbHandleID}
}

// ID returns the handle's identity.
func (h *BareHandle) ID() HandleID { return h.id }

// YieldNow spins via runtime.Gosched.
func (h *BareHandle) YieldNow() { BareThreadEnv{}.YieldNow() }

// Panicking always returns false.
func (h *BareHandle) Panicking() bool { return false }

// Park spins rather than blocking; BareHandle has no parking facility.
func (h *BareHandle) Park() { runtime.Gosched() }

// Unpark is a no-op: BareHandle never actually parks.
func (h *BareHandle) Unpark() {}

// GoroutineHandle is the goroutine-hosted Handle backend. Unlike a platform
// thread handle, Go gives us no thread::park/unpark pair, so Park/Unpark are
// backed by a per-handle channel of capacity 1 used as a park token: Park
// receives from it (blocking until a token is available), and Unpark sends
// a token without blocking, discarding the send if one is already pending
// (which is exactly the "idempotent, non-blocking release of a pending
// park" contract Handle requires).
type GoroutineHandle struct {
	id     HandleID
	parked chan struct{}
}

// NewGoroutineHandle returns a fresh GoroutineHandle with a unique id.
func NewGoroutineHandle() *GoroutineHandle {
	return &GoroutineHandle{id: nextHandleID(), parked: make(chan struct{}, 1)}
}

// DumbGoroutineHandle returns an anonymous GoroutineHandle carrying
// DumbHandleID.
func DumbGoroutineHandle() *GoroutineHandle {
	return &GoroutineHandle{id: DumbHandleID, parked: make(chan struct{}, 1)}
}

// ID returns the handle's identity.
func (h *GoroutineHandle) ID() HandleID { return h.id }

// YieldNow hints the scheduler via runtime.Gosched.
func (h *GoroutineHandle) YieldNow() { GoroutineThreadEnv{}.YieldNow() }

// Panicking always returns false; see GoroutineThreadEnv.
func (h *GoroutineHandle) Panicking() bool { return false }

// Park blocks until a matching Unpark arrives.
func (h *GoroutineHandle) Park() {
	<-h.parked
}

// Unpark releases a pending Park on this handle without blocking.
func (h *GoroutineHandle) Unpark() {
	select {
	case h.parked <- struct{}{}:
	default:
	}
}

var _ Handle = (*BareHandle)(nil)
var _ Handle = (*GoroutineHandle)(nil)
