package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a background job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job type constants
const (
	// JobTypeTaskCreatedBroadcast represents the post-creation workflow that
	// verifies a task and broadcasts its creation event.
	JobTypeTaskCreatedBroadcast = "task_created_broadcast"
)

// ErrPermanent marks a job failure as non-transient. The runner never
// retries an error that wraps ErrPermanent: the job is marked failed on the
// first occurrence. Use it for data-integrity problems that more attempts
// cannot fix.
var ErrPermanent = errors.New("permanent job failure")

// Job represents a unit of background work to be processed.
type Job interface {
	// ID returns the job's unique identifier
	ID() uuid.UUID

	// Type returns the job type identifier
	Type() string

	// Payload returns the job data as a byte slice
	Payload() []byte

	// Execute runs the job logic. A nil return means the job is done, which
	// includes deliberate no-ops (e.g. the target resource is gone). Errors
	// wrapping ErrPermanent are not retried; any other error is treated as
	// transient and retried up to the runner's attempt cap.
	Execute(ctx context.Context) error
}

// JobRecord is the persisted form of a job, as stored and reloaded by a
// JobStore. Records are turned back into executable Jobs by a RestoreFunc
// during crash recovery.
type JobRecord struct {
	ID           uuid.UUID
	Type         string
	Payload      []byte
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RestoreFunc rebuilds an executable Job from its persisted record.
// It returns an error for unknown job types or unreadable payloads.
type RestoreFunc func(rec JobRecord) (Job, error)

// JobStore defines the interface for persisting jobs.
type JobStore interface {
	// SaveJob persists a new job with pending status.
	SaveJob(ctx context.Context, job Job) error

	// UpdateJobStatus updates the status of a job, recording an error
	// message for failed jobs.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, errorMsg string) error

	// GetPendingJobs retrieves all jobs with "pending" status.
	GetPendingJobs(ctx context.Context) ([]JobRecord, error)

	// GetProcessingJobs retrieves jobs with "processing" status.
	// If olderThan is non-zero, only returns jobs that have been in this
	// state longer than the specified duration.
	GetProcessingJobs(ctx context.Context, olderThan time.Duration) ([]JobRecord, error)
}
