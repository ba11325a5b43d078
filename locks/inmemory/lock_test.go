package inmemory

import (
	"testing"
	"time"

	"github.com/ledgerops/warehouse/locks"
	"github.com/stretchr/testify/require"
)

func TestLock(t *testing.T) {
	factory := NewLockFactory()

	first := factory.CreateLock("source:s1")
	require.NoError(t, first.TryLock())

	second := factory.CreateLock("source:s1")
	require.Equal(t, locks.ErrAlreadyLocked, second.TryLock())
	require.Equal(t, locks.ErrAlreadyLocked, second.Lock(30*time.Millisecond))
	require.False(t, second.Unlock(), "not held lock can't release the name")

	other := factory.CreateLock("source:s2")
	require.NoError(t, other.TryLock())

	require.True(t, first.Unlock())
	require.NoError(t, second.Lock(30*time.Millisecond))
	require.False(t, first.Unlock())
}

func TestLockWaitsForRelease(t *testing.T) {
	factory := NewLockFactory()

	held := factory.CreateLock("pipeline:p1")
	require.NoError(t, held.TryLock())

	time.AfterFunc(30*time.Millisecond, func() { held.Unlock() })

	waiting := factory.CreateLock("pipeline:p1")
	require.NoError(t, waiting.Lock(time.Second))
}
