package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockJobStore is an in-memory JobStore for runner tests.
type mockJobStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]JobRecord
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{records: make(map[uuid.UUID]JobRecord)}
}

func (s *mockJobStore) SaveJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.records[job.ID()] = JobRecord{
		ID:        job.ID(),
		Type:      job.Type(),
		Payload:   job.Payload(),
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *mockJobStore) UpdateJobStatus(_ context.Context, jobID uuid.UUID, status JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	rec.Status = status
	rec.ErrorMessage = errorMsg
	rec.UpdatedAt = time.Now().UTC()
	s.records[jobID] = rec
	return nil
}

func (s *mockJobStore) GetPendingJobs(_ context.Context) ([]JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []JobRecord
	for _, rec := range s.records {
		if rec.Status == JobStatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *mockJobStore) GetProcessingJobs(_ context.Context, olderThan time.Duration) ([]JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []JobRecord
	for _, rec := range s.records {
		if rec.Status == JobStatusProcessing && (olderThan == 0 || rec.UpdatedAt.Before(cutoff)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *mockJobStore) status(jobID uuid.UUID) JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[jobID].Status
}

func (s *mockJobStore) seed(rec JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

// testJob is a scriptable Job for exercising the runner.
type testJob struct {
	id      uuid.UUID
	jobType string
	payload []byte

	mu       sync.Mutex
	attempts int
	execFn   func(ctx context.Context, attempt int) error
}

func newTestJob(execFn func(ctx context.Context, attempt int) error) *testJob {
	return &testJob{
		id:      uuid.New(),
		jobType: "test_job",
		payload: []byte(`{}`),
		execFn:  execFn,
	}
}

func (j *testJob) ID() uuid.UUID   { return j.id }
func (j *testJob) Type() string    { return j.jobType }
func (j *testJob) Payload() []byte { return j.payload }

func (j *testJob) Execute(ctx context.Context) error {
	j.mu.Lock()
	j.attempts++
	attempt := j.attempts
	j.mu.Unlock()
	return j.execFn(ctx, attempt)
}

func (j *testJob) attemptCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           1,
		QueueSize:             10,
		MaxAttempts:           3,
		RetryDelay:            10 * time.Millisecond,
		StuckJobAge:           time.Hour,
		StuckJobCheckInterval: time.Hour,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerProcessesJobToCompletion(t *testing.T) {
	store := newMockJobStore()
	runner := NewRunner(store, nil, testRunnerConfig(), discardLogger())

	require.NoError(t, runner.Start())
	defer runner.Stop()

	job := newTestJob(func(_ context.Context, _ int) error { return nil })
	require.NoError(t, runner.Submit(context.Background(), job))

	require.Eventually(t, func() bool {
		return store.status(job.ID()) == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, job.attemptCount())
}

func TestRunnerRetriesTransientErrors(t *testing.T) {
	store := newMockJobStore()
	runner := NewRunner(store, nil, testRunnerConfig(), discardLogger())

	require.NoError(t, runner.Start())
	defer runner.Stop()

	job := newTestJob(func(_ context.Context, attempt int) error {
		if attempt < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	require.NoError(t, runner.Submit(context.Background(), job))

	require.Eventually(t, func() bool {
		return store.status(job.ID()) == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, job.attemptCount())
}

func TestRunnerFailsAfterExhaustingAttempts(t *testing.T) {
	store := newMockJobStore()
	runner := NewRunner(store, nil, testRunnerConfig(), discardLogger())

	var handlerMu sync.Mutex
	var handledErr error
	runner.SetErrorHandler(func(_ Job, err error) {
		handlerMu.Lock()
		handledErr = err
		handlerMu.Unlock()
	})

	require.NoError(t, runner.Start())
	defer runner.Stop()

	job := newTestJob(func(_ context.Context, _ int) error {
		return errors.New("always failing")
	})
	require.NoError(t, runner.Submit(context.Background(), job))

	require.Eventually(t, func() bool {
		return store.status(job.ID()) == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, job.attemptCount())

	handlerMu.Lock()
	defer handlerMu.Unlock()
	require.Error(t, handledErr)
	assert.Contains(t, handledErr.Error(), "always failing")
}

func TestRunnerDoesNotRetryPermanentErrors(t *testing.T) {
	store := newMockJobStore()
	runner := NewRunner(store, nil, testRunnerConfig(), discardLogger())

	require.NoError(t, runner.Start())
	defer runner.Stop()

	job := newTestJob(func(_ context.Context, _ int) error {
		return fmt.Errorf("bad data: %w", ErrPermanent)
	})
	require.NoError(t, runner.Submit(context.Background(), job))

	require.Eventually(t, func() bool {
		return store.status(job.ID()) == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, job.attemptCount())
}

func TestRunnerSubmitFailsWhenQueueFull(t *testing.T) {
	store := newMockJobStore()
	cfg := testRunnerConfig()
	cfg.QueueSize = 1
	runner := NewRunner(store, nil, cfg, discardLogger())
	// Runner deliberately not started: nothing drains the queue.

	block := newTestJob(func(_ context.Context, _ int) error { return nil })
	require.NoError(t, runner.Submit(context.Background(), block))

	overflow := newTestJob(func(_ context.Context, _ int) error { return nil })
	err := runner.Submit(context.Background(), overflow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
}

func TestRunnerRecoversPersistedJobs(t *testing.T) {
	store := newMockJobStore()

	executed := make(chan uuid.UUID, 4)
	restore := func(rec JobRecord) (Job, error) {
		id := rec.ID
		job := newTestJob(func(_ context.Context, _ int) error {
			executed <- id
			return nil
		})
		job.id = id
		return job, nil
	}

	pendingID := uuid.New()
	store.seed(JobRecord{
		ID:      pendingID,
		Type:    "test_job",
		Payload: []byte(`{}`),
		Status:  JobStatusPending,
	})

	interruptedID := uuid.New()
	store.seed(JobRecord{
		ID:      interruptedID,
		Type:    "test_job",
		Payload: []byte(`{}`),
		Status:  JobStatusProcessing,
	})

	runner := NewRunner(store, restore, testRunnerConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	seen := make(map[uuid.UUID]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case id := <-executed:
			seen[id] = true
		case <-timeout:
			t.Fatalf("recovered jobs not executed, saw %d of 2", len(seen))
		}
	}

	assert.True(t, seen[pendingID])
	assert.True(t, seen[interruptedID])

	require.Eventually(t, func() bool {
		return store.status(pendingID) == JobStatusCompleted &&
			store.status(interruptedID) == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunnerRecoveryMarksUnrestorableJobsFailed(t *testing.T) {
	store := newMockJobStore()

	restore := func(rec JobRecord) (Job, error) {
		return nil, fmt.Errorf("unknown job type %q", rec.Type)
	}

	orphanID := uuid.New()
	store.seed(JobRecord{
		ID:      orphanID,
		Type:    "retired_job_type",
		Payload: []byte(`{}`),
		Status:  JobStatusPending,
	})

	runner := NewRunner(store, restore, testRunnerConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	assert.Equal(t, JobStatusFailed, store.status(orphanID))
}
