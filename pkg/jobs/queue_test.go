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

func TestQueueRunsJobs(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 1})

	require.Error(t, q.Enqueue(Job{Type: "noop"}), "enqueue before start must fail")

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "noop"}))
	select {
	case job := <-done:
		assert.Equal(t, "noop", job.Type)
		assert.NotEmpty(t, job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	finished := make(chan struct{})
	q := NewQueue("retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(finished)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "flaky"}))
	select {
	case <-finished:
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueRefusesOverlappingKeys(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	finished := make(chan struct{}, 1)
	q := NewQueue("dedupe", func(_ context.Context, job Job) error {
		started <- struct{}{}
		<-release
		finished <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "sweep", Key: "sweep"}))
	<-started
	assert.True(t, q.Pending("sweep"))

	err := q.Enqueue(Job{Type: "sweep", Key: "sweep"})
	assert.ErrorIs(t, err, ErrDuplicateJob)

	close(release)
	<-finished
	require.Eventually(t, func() bool { return !q.Pending("sweep") }, time.Second, 5*time.Millisecond)
	assert.NoError(t, q.Enqueue(Job{Type: "sweep", Key: "sweep"}))
}

func TestQueueKeepsKeyAcrossRetries(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("keyed-retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 50 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "purge", Key: "purge"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, q.Enqueue(Job{Type: "purge", Key: "purge"}), ErrDuplicateJob)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry never ran")
	}
	require.Eventually(t, func() bool { return !q.Pending("purge") }, time.Second, 5*time.Millisecond)
}
