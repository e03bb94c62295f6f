package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesTask(t *testing.T) {
	done := make(chan string, 1)
	q := NewQueue("test", func(_ context.Context, task Task[string]) error {
		done <- task.Payload
		return nil
	}, Options{})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task[string]{ID: "1", Payload: "hello"}))
	select {
	case got := <-done:
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatal("task not processed")
	}
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var calls int32
	gaveUp := make(chan int, 1)
	q := NewQueue("test", func(context.Context, Task[int]) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, Options{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.OnGiveUp = func(task Task[int], _ error) { gaveUp <- task.Attempt }
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task[int]{ID: "x"}))
	select {
	case attempts := <-gaveUp:
		assert.Equal(t, 3, attempts)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("queue never gave up")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Task[int]) error { return nil }, Options{})
	assert.ErrorIs(t, q.Enqueue(Task[int]{}), ErrQueueClosed)
}
