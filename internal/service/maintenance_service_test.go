package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-approval-api/pkg/jobs"
	"github.com/noah-isme/attendance-approval-api/pkg/storage"
)

type attachmentPathsStub struct {
	paths []string
	err   error
}

func (s attachmentPathsStub) ListAttachmentPaths(ctx context.Context) ([]string, error) {
	return s.paths, s.err
}

type tokenPurgerStub struct {
	cutoff  time.Time
	deleted int64
}

func (s *tokenPurgerStub) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, nil
}

type enqueueRecorder struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (r *enqueueRecorder) Enqueue(job jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func writeAgedBlob(t *testing.T, store *storage.LocalStorage, name string, age time.Duration) {
	t.Helper()
	_, err := store.SaveStream(name, strings.NewReader("evidence"))
	require.NoError(t, err)
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(store.Path(name), stamp, stamp))
}

func TestMaintenanceServiceSweepKeepsReferencedAndRecentBlobs(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	writeAgedBlob(t, store, "2024/05/referenced.pdf", 48*time.Hour)
	writeAgedBlob(t, store, "2024/05/orphan.pdf", 48*time.Hour)
	writeAgedBlob(t, store, "2024/05/fresh.pdf", time.Minute)

	metrics := NewMetricsService()
	svc := NewMaintenanceService(attachmentPathsStub{paths: []string{"2024/05/referenced.pdf"}}, store, &tokenPurgerStub{}, metrics, 24*time.Hour, nil)

	removed, err := svc.SweepAttachments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024/05/orphan.pdf"}, removed)

	_, err = os.Stat(store.Path("2024/05/referenced.pdf"))
	assert.NoError(t, err)
	_, err = os.Stat(store.Path("2024/05/fresh.pdf"))
	assert.NoError(t, err)
	_, err = os.Stat(store.Path("2024/05/orphan.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestMaintenanceServiceSweepStopsWhenPathsUnavailable(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	writeAgedBlob(t, store, "old.pdf", 48*time.Hour)

	svc := NewMaintenanceService(attachmentPathsStub{err: errors.New("db down")}, store, &tokenPurgerStub{}, nil, time.Hour, nil)
	_, err = svc.SweepAttachments(context.Background())
	require.Error(t, err)

	_, statErr := os.Stat(store.Path("old.pdf"))
	assert.NoError(t, statErr)
}

func TestMaintenanceServiceHandleDispatchesJobs(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tokens := &tokenPurgerStub{deleted: 3}
	svc := NewMaintenanceService(attachmentPathsStub{}, store, tokens, nil, time.Hour, nil)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Type: JobTypePurgeTokens}))
	assert.Equal(t, fixed, tokens.cutoff)
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Type: JobTypeSweepAttachments}))
	assert.Error(t, svc.Handle(context.Background(), jobs.Job{Type: "unknown"}))
}

func TestMaintenanceServiceScheduleEnqueuesBothJobs(t *testing.T) {
	svc := NewMaintenanceService(attachmentPathsStub{}, nil, &tokenPurgerStub{}, nil, time.Hour, nil)
	scheduler := cron.New()
	recorder := &enqueueRecorder{}

	id, err := svc.Schedule(scheduler, "@every 1h", recorder)
	require.NoError(t, err)

	scheduler.Entry(id).Job.Run()
	require.Len(t, recorder.jobs, 2)
	assert.Equal(t, JobTypeSweepAttachments, recorder.jobs[0].Type)
	assert.Equal(t, JobTypePurgeTokens, recorder.jobs[1].Type)
	assert.Equal(t, JobTypeSweepAttachments, recorder.jobs[0].Key)

	_, err = svc.Schedule(scheduler, "not a schedule", recorder)
	assert.Error(t, err)
}

func TestMaintenanceServiceScheduleSkipsPendingJobs(t *testing.T) {
	svc := NewMaintenanceService(attachmentPathsStub{}, nil, &tokenPurgerStub{}, nil, time.Hour, nil)
	block := make(chan struct{})
	queue := jobs.NewQueue("maintenance-test", func(ctx context.Context, job jobs.Job) error {
		<-block
		return nil
	}, jobs.QueueConfig{Workers: 1})
	queue.Start(context.Background())
	defer queue.Stop()
	defer close(block)

	scheduler := cron.New()
	id, err := svc.Schedule(scheduler, "@every 1h", queue)
	require.NoError(t, err)

	scheduler.Entry(id).Job.Run()
	scheduler.Entry(id).Job.Run()

	assert.True(t, queue.Pending(JobTypeSweepAttachments))
	assert.True(t, queue.Pending(JobTypePurgeTokens))
}
