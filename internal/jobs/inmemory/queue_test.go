package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akulikov/statement-import/internal/jobs"
)

func TestQueue_PublishAndConsume(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var mu sync.Mutex
	var processed []jobs.Kind

	handler := func(ctx context.Context, job *jobs.ImportJob) error {
		mu.Lock()
		processed = append(processed, job.Kind)
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx, handler))

	job := &jobs.ImportJob{Kind: jobs.KindExtract, ImportID: uuid.New(), UserID: "user-1"}
	require.NoError(t, q.Publish(ctx, job))
	assert.NotEmpty(t, job.JobID, "publish assigns a job ID")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 1
	}, time.Second, 10*time.Millisecond)

	stored, err := store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestQueue_SingleWorkerIsSequential(t *testing.T) {
	q := NewQueue(10, 1, nil)
	defer q.Close()

	var mu sync.Mutex
	running := 0
	maxRunning := 0

	handler := func(ctx context.Context, job *jobs.ImportJob) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx, handler))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Publish(ctx, &jobs.ImportJob{Kind: jobs.KindExtract, ImportID: uuid.New()}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 0 && maxRunning > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxRunning, "one worker must never overlap jobs")
}

func TestQueue_FailedJobMarkedFailed(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	handler := func(ctx context.Context, job *jobs.ImportJob) error {
		return errors.New("boom")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx, handler))

	job := &jobs.ImportJob{Kind: jobs.KindCategorize, ImportID: uuid.New()}
	require.NoError(t, q.Publish(ctx, job))

	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.JobID)
		return err == nil && stored.Status == jobs.StatusFailed
	}, time.Second, 10*time.Millisecond)

	stored, _ := store.GetJob(ctx, job.JobID)
	assert.Equal(t, "boom", stored.Error)
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), &jobs.ImportJob{Kind: jobs.KindExtract})
	assert.Error(t, err)
}

func TestStore_Filtering(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	importID := uuid.New()
	require.NoError(t, store.SaveJob(ctx, &jobs.ImportJob{JobID: "a", ImportID: importID, Status: jobs.StatusPending}))
	require.NoError(t, store.SaveJob(ctx, &jobs.ImportJob{JobID: "b", ImportID: uuid.New(), Status: jobs.StatusCompleted}))

	byImport, err := store.ListJobs(ctx, jobs.Filter{ImportID: importID})
	require.NoError(t, err)
	require.Len(t, byImport, 1)
	assert.Equal(t, "a", byImport[0].JobID)

	byStatus, err := store.ListJobs(ctx, jobs.Filter{Status: jobs.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "b", byStatus[0].JobID)
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, &jobs.ImportJob{JobID: "a", Status: jobs.StatusPending}))

	got, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	got.Status = jobs.StatusFailed

	again, err := store.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, again.Status, "mutating a returned job must not affect the store")
}
