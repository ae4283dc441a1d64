package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/platform/logger"
	"github.com/phrazzld/taskboard-api/internal/store"
	"github.com/phrazzld/taskboard-api/internal/worker"
)

// PostgresJobStore implements the worker.JobStore interface using
// PostgreSQL. Persisting jobs lets the runner requeue work that was
// pending or in flight when the process stopped.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}

	return &PostgresJobStore{db: db}
}

// Ensure PostgresJobStore implements worker.JobStore interface
var _ worker.JobStore = (*PostgresJobStore)(nil)

// SaveJob persists a new job with pending status.
func (s *PostgresJobStore) SaveJob(ctx context.Context, job worker.Job) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO jobs (id, type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, query,
		job.ID(),
		job.Type(),
		job.Payload(),
		worker.JobStatusPending,
		now,
		now,
	)
	if err != nil {
		log.Error("failed to save job",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"error", err)
		return fmt.Errorf("failed to save job to database: %w", err)
	}

	return nil
}

// UpdateJobStatus updates the status of a job, recording an error message
// for failed jobs. A missing job is treated as a no-op: the record may
// have been pruned while the job was still in the queue.
func (s *PostgresJobStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status worker.JobStatus, errorMsg string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		errorMsg,
		time.Now().UTC(),
		jobID,
	)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", jobID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("no job found with ID to update status", "job_id", jobID)
	}

	return nil
}

// GetPendingJobs retrieves all jobs with "pending" status.
func (s *PostgresJobStore) GetPendingJobs(ctx context.Context) ([]worker.JobRecord, error) {
	return s.getJobsByStatus(ctx, worker.JobStatusPending, 0)
}

// GetProcessingJobs retrieves jobs with "processing" status, optionally
// restricted to jobs that have sat in that state longer than olderThan.
func (s *PostgresJobStore) GetProcessingJobs(ctx context.Context, olderThan time.Duration) ([]worker.JobRecord, error) {
	return s.getJobsByStatus(ctx, worker.JobStatusProcessing, olderThan)
}

func (s *PostgresJobStore) getJobsByStatus(ctx context.Context, status worker.JobStatus, olderThan time.Duration) ([]worker.JobRecord, error) {
	log := logger.FromContext(ctx)

	var query string
	var args []any

	if olderThan > 0 {
		query = `
			SELECT id, type, payload, status, error_message, created_at, updated_at
			FROM jobs
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC
		`
		args = []any{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = `
			SELECT id, type, payload, status, error_message, created_at, updated_at
			FROM jobs
			WHERE status = $1
			ORDER BY created_at ASC
		`
		args = []any{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs by status", "status", status, "error", err)
		return nil, fmt.Errorf("failed to query jobs by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []worker.JobRecord

	for rows.Next() {
		var rec worker.JobRecord
		var errorMessage sql.NullString

		if err := rows.Scan(
			&rec.ID,
			&rec.Type,
			&rec.Payload,
			&rec.Status,
			&errorMessage,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			log.Error("failed to scan job row", "status", status, "error", err)
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		rec.ErrorMessage = errorMessage.String
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating job rows", "status", status, "error", err)
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return records, nil
}
