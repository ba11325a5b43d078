package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPriorityOrder(t *testing.T) {
	q := NewInMemory()
	defer q.Close()

	require.NoError(t, q.Push("low-1", 100))
	require.NoError(t, q.Push("high-1", 200))
	require.NoError(t, q.Push("low-2", 100))
	require.NoError(t, q.Push("high-2", 200))
	require.Equal(t, int64(4), q.Size())

	ctx := context.Background()
	for _, expected := range []string{"high-1", "high-2", "low-1", "low-2"} {
		value, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, expected, value)
	}
	require.Equal(t, int64(0), q.Size())
}

func TestPopWaitsForElement(t *testing.T) {
	q := NewInMemory()
	defer q.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		q.Push("job", 1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "job", value)
}

func TestPopContextAndClose(t *testing.T) {
	q := NewInMemory()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.Equal(t, context.DeadlineExceeded, err)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	_, err = q.Pop(context.Background())
	require.Equal(t, ErrQueueClosed, err)
	require.Equal(t, ErrQueueClosed, q.Push("job", 1))
}
