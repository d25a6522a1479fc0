package synclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFairStrategyAdmitsLeadingReaderBurst(t *testing.T) {
	entries := []Entry{
		{ID: 1, Method: MethodRead},
		{ID: 2, Method: MethodRead},
		{ID: 3, Method: MethodRead},
	}
	states := FairStrategy(entries)
	for i, s := range states {
		assert.Truef(t, s.IsOk(), "entry %d expected Ok", i)
	}
}

func TestFairStrategySerializesWriters(t *testing.T) {
	entries := []Entry{
		{ID: 1, Method: MethodWrite},
		{ID: 2, Method: MethodWrite},
		{ID: 3, Method: MethodWrite},
	}
	states := FairStrategy(entries)
	assert.True(t, states[0].IsOk())
	assert.True(t, states[1].IsBlocked())
	assert.True(t, states[2].IsBlocked())
}

func TestFairStrategyWriterBlocksTrailingReaders(t *testing.T) {
	entries := []Entry{
		{ID: 1, Method: MethodRead},
		{ID: 2, Method: MethodWrite},
		{ID: 3, Method: MethodRead},
	}
	states := FairStrategy(entries)
	assert.True(t, states[0].IsOk())
	assert.True(t, states[1].IsBlocked())
	assert.True(t, states[2].IsBlocked())
}

func TestFairStrategyFrontWriterBlocksNewReaders(t *testing.T) {
	// A writer at the front of the queue is admitted, and a reader queued
	// behind it stays Blocked rather than joining it.
	entries := []Entry{
		{ID: 1, Method: MethodWrite},
		{ID: 2, Method: MethodRead},
	}
	states := FairStrategy(entries)
	assert.True(t, states[0].IsOk())
	assert.True(t, states[1].IsBlocked())
}

func TestFairStrategyEmptyQueue(t *testing.T) {
	states := FairStrategy(nil)
	assert.Empty(t, states)
}
