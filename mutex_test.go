package synclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLockUnlockRoundTrip(t *testing.T) {
	m := NewMutex(0)
	guard, poison := m.Lock()
	require.Nil(t, poison)
	*guard.Value() = 42
	guard.Unlock()

	guard, poison = m.Lock()
	require.Nil(t, poison)
	assert.Equal(t, 42, *guard.Value())
	guard.Unlock()
}

func TestMutexTryLockFailsWhileHeld(t *testing.T) {
	m := NewMutex(0)
	guard, poison := m.Lock()
	require.Nil(t, poison)

	_, err := m.TryLock()
	assert.ErrorIs(t, err, ErrWouldBlock)

	guard.Unlock()

	guard2, err := m.TryLock()
	require.NoError(t, err)
	guard2.Unlock()
}

func TestMutexMutualExclusion(t *testing.T) {
	const n = 64
	m := NewMutex(0)
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			guard, _ := m.Lock()
			*guard.Value()++
			guard.Unlock()
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	guard, _ := m.Lock()
	assert.Equal(t, n, *guard.Value())
	guard.Unlock()
}

func TestMutexPoisonsOnPanic(t *testing.T) {
	m := NewMutex(0)

	func() {
		defer func() { _ = recover() }()
		guard, _ := m.Lock()
		defer guard.Unlock()
		panic("boom")
	}()

	assert.True(t, m.IsPoisoned())

	guard, poison := m.Lock()
	require.NotNil(t, poison)
	assert.Same(t, guard, poison.Into())
	guard.Unlock()
}

func TestMutexClearPoison(t *testing.T) {
	m := NewMutex(0)
	func() {
		defer func() { _ = recover() }()
		guard, _ := m.Lock()
		defer guard.Unlock()
		panic("boom")
	}()
	require.True(t, m.IsPoisoned())

	m.ClearPoison()
	assert.False(t, m.IsPoisoned())

	guard, poison := m.Lock()
	assert.Nil(t, poison)
	guard.Unlock()
}

func TestMutexTryLockSurfacesPoison(t *testing.T) {
	m := NewMutex(0)
	func() {
		defer func() { _ = recover() }()
		guard, _ := m.Lock()
		defer guard.Unlock()
		panic("boom")
	}()

	_, err := m.TryLock()
	var poisonErr *PoisonError[*MutexGuard[int, GoroutineThreadEnv]]
	require.ErrorAs(t, err, &poisonErr)
}

func TestMutexGetMutBypassesLock(t *testing.T) {
	m := NewMutex(7)
	v, poison := m.GetMut()
	assert.Nil(t, poison)
	assert.Equal(t, 7, *v)
	*v = 8

	guard, _ := m.Lock()
	assert.Equal(t, 8, *guard.Value())
	guard.Unlock()
}

func TestMutexIntoInner(t *testing.T) {
	m := NewMutex("hello")
	v, poison := m.IntoInner()
	assert.Nil(t, poison)
	assert.Equal(t, "hello", v)
}

func TestCoreMutexDoesNotDependOnGoroutineHandle(t *testing.T) {
	m := NewCoreMutex(0)
	guard, poison := m.Lock()
	require.Nil(t, poison)
	*guard.Value() = 5
	guard.Unlock()
	assert.Equal(t, 5, *func() *int { g, _ := m.Lock(); defer g.Unlock(); return g.Value() }())
}
