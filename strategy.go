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

// Method denotes the kind of access a waiter in a RwLock's queue wants.
type Method int

const (
	// MethodRead denotes a waiter wanting shared read access.
	MethodRead Method = iota
	// MethodWrite denotes a waiter wanting exclusive read-write access.
	MethodWrite
)

// IsRead reports whether m is MethodRead.
func (m Method) IsRead() bool { return m == MethodRead }

// IsWrite reports whether m is MethodWrite.
func (m Method) IsWrite() bool { return m == MethodWrite }

// State denotes whether a waiter is allowed to proceed.
type State int

const (
	// StateOk means the corresponding waiter may proceed.
	StateOk State = iota
	// StateBlocked means the corresponding waiter remains blocked.
	StateBlocked
)

// IsOk reports whether s is StateOk.
func (s State) IsOk() bool { return s == StateOk }

// IsBlocked reports whether s is StateBlocked.
func (s State) IsBlocked() bool { return s == StateBlocked }

// Entry is one waiter's (identity, desired access) pair, as seen by a
// Strategy. Entries are presented to a Strategy in enqueue order, oldest
// first.
type Entry struct {
	ID     HandleID
	Method Method
}

// Strategy decides, given the enqueue-ordered list of waiters on a RwLock,
// which of them may proceed. It must return a slice of States the same
// length as entries, with each element corresponding positionally to the
// entry at the same index.
//
// It is a logic error for a Strategy to:
//
//   - return a different number of States than entries given;
//   - return StateOk for a MethodRead and a MethodWrite entry at the same
//     time;
//   - return StateOk for two or more MethodWrite entries at the same time;
//   - return StateBlocked for an entry that a previous invocation already
//     returned StateOk for (except the currently-acquiring entry's own
//     first evaluation, which the scheduler permits to be held Blocked).
//
// These are detected and reported by the Queue scheduler, not by Strategy
// implementations themselves - see StrategyLogicError.
type Strategy func(entries []Entry) []State

// FairStrategy is the reference admission policy: a run of adjacent readers
// is admitted together, and writers serialize in arrival order. It walks
// entries front-to-back maintaining two "future gates" - futureRead and
// futureWrite, both starting StateOk:
//
//   - a MethodRead entry is given the current futureRead value, then
//     futureWrite is set to StateBlocked (a reader does not block later
//     reads, but does block later writes);
//   - a MethodWrite entry is given the current futureWrite value, then both
//     gates are set to StateBlocked (a writer - admitted or not - blocks
//     everything behind it).
//
// The consequence: a burst of readers at the front of the queue are all
// admitted concurrently; the first writer behind them waits for the burst
// to drain and then serializes; no reader can jump ahead of a writer
// already waiting; successive writers serialize in arrival order.
func FairStrategy(entries []Entry) []State {
	result := make([]State, len(entries))
	futureRead, futureWrite := StateOk, StateOk
	for i, entry := range entries {
		switch entry.Method {
		case MethodRead:
			result[i] = futureRead
			futureWrite = StateBlocked
		case MethodWrite:
			result[i] = futureWrite
			futureRead = StateBlocked
			futureWrite = StateBlocked
		}
	}
	return result
}
