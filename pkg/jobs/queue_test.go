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

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 2)
	q := NewQueue("test", func(ctx context.Context, job Job[string]) error {
		done <- job.Payload
		return nil
	}, QueueConfig{Workers: 2})

	require.Error(t, q.Enqueue(Job[string]{ID: "early"}), "not started")

	q.Start(context.Background())
	defer q.Stop()
	require.NoError(t, q.Enqueue(Job[string]{ID: "1", Payload: "a"}))
	require.NoError(t, q.Enqueue(Job[string]{ID: "2", Payload: "b"}))

	got := map[string]bool{}
	for range 2 {
		select {
		case p := <-done:
			got[p] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
}

func TestQueueRetriesThenReportsFailure(t *testing.T) {
	var attempts atomic.Int32
	failed := make(chan Job[int], 1)
	q := NewQueue("retry", func(ctx context.Context, job Job[int]) error {
		attempts.Add(1)
		return errors.New("nope")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.OnFailure(func(ctx context.Context, job Job[int], err error) {
		failed <- job
	})

	q.Start(context.Background())
	defer q.Stop()
	require.NoError(t, q.Enqueue(Job[int]{ID: "x", Payload: 7}))

	select {
	case job := <-failed:
		assert.Equal(t, 3, job.Attempt)
		assert.Equal(t, 7, job.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("failure hook not called")
	}
	assert.EqualValues(t, 3, attempts.Load())
}
