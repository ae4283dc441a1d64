package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RunnerConfig holds configuration for the job runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process jobs
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	QueueSize int

	// MaxAttempts caps how often a job is executed before being marked
	// permanently failed. Only transient errors consume retries; an error
	// wrapping ErrPermanent fails the job immediately.
	MaxAttempts int

	// RetryDelay is the fixed backoff between attempts
	RetryDelay time.Duration

	// StuckJobAge defines how long a job can be in processing state
	// before it's considered stuck and reset
	StuckJobAge time.Duration

	// StuckJobCheckInterval defines how often to check for stuck jobs.
	// If zero, defaults to 5 minutes.
	StuckJobCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           2,
		QueueSize:             100,
		MaxAttempts:           3,
		RetryDelay:            5 * time.Second,
		StuckJobAge:           30 * time.Minute,
		StuckJobCheckInterval: 5 * time.Minute,
	}
}

// Runner manages background job processing: a buffered queue drained by a
// small worker pool, with per-job retry handling and persisted job state
// for crash recovery.
type Runner struct {
	store      JobStore
	restore    RestoreFunc
	jobChan    chan Job
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
	errHandler func(job Job, err error)
}

// NewRunner creates a new Runner. The restore function is used during
// recovery to turn persisted job records back into executable jobs; it may
// be nil if recovery is not needed (e.g. in tests).
func NewRunner(store JobStore, restore RestoreFunc, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.StuckJobCheckInterval == 0 {
		config.StuckJobCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		store:      store,
		restore:    restore,
		jobChan:    make(chan Job, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		errHandler: func(job Job, err error) {
			logger.Error("job execution failed",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"error", err)
		},
	}
}

// SetErrorHandler allows setting a custom error handler function.
// The handler is invoked once per permanently failed job, after retries
// are exhausted.
func (r *Runner) SetErrorHandler(handler func(job Job, err error)) {
	r.errHandler = handler
}

// Submit persists a new job and adds it to the queue.
// Returns an error if the job cannot be saved or the queue is full.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	if err := r.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case r.jobChan <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full, try again later")
	}
}

// Start initializes the worker pool and begins processing jobs.
func (r *Runner) Start() error {
	if err := r.recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckJobMonitor()

	return nil
}

// Stop gracefully shuts down the runner, cancelling in-flight jobs and
// waiting for workers to exit.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.jobChan)
}

// recover requeues unfinished jobs from previous runs: pending jobs are
// requeued as-is, processing jobs (interrupted by a crash) are reset to
// pending first. Records that cannot be restored are marked failed.
func (r *Runner) recover() error {
	if r.restore == nil {
		return nil
	}

	ctx := context.Background()

	pending, err := r.store.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	processing, err := r.store.GetProcessingJobs(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		"pending_count", len(pending),
		"processing_count", len(processing))

	for _, rec := range processing {
		if err := r.store.UpdateJobStatus(ctx, rec.ID, JobStatusPending, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing job status",
				"job_id", rec.ID,
				"job_type", rec.Type,
				"error", err)
			continue
		}
		pending = append(pending, rec)
	}

	for _, rec := range pending {
		job, err := r.restore(rec)
		if err != nil {
			r.logger.Error("failed to restore job, marking failed",
				"job_id", rec.ID,
				"job_type", rec.Type,
				"error", err)
			_ = r.store.UpdateJobStatus(ctx, rec.ID, JobStatusFailed, "unrestorable: "+err.Error())
			continue
		}

		select {
		case r.jobChan <- job:
		default:
			r.logger.Error("failed to requeue job, queue is full",
				"job_id", rec.ID,
				"job_type", rec.Type)
		}
	}

	return nil
}

// worker processes jobs from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-r.jobChan:
			if !ok {
				r.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processJob(job, id)
		}
	}
}

// processJob handles execution of a single job including its retry loop.
func (r *Runner) processJob(job Job, workerID int) {
	logger := r.logger.With(
		"job_id", job.ID(),
		"job_type", job.Type(),
		"worker_id", workerID,
	)

	// Status updates use a background context so they survive shutdown
	// of the execution context.
	statusCtx := context.Background()

	if err := r.store.UpdateJobStatus(statusCtx, job.ID(), JobStatusProcessing, ""); err != nil {
		logger.Error("failed to update job status to processing", "error", err)
		return
	}

	logger.Info("processing job")

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = job.Execute(r.ctx)
		if lastErr == nil {
			logger.Info("job completed successfully", "attempt", attempt)
			if err := r.store.UpdateJobStatus(statusCtx, job.ID(), JobStatusCompleted, ""); err != nil {
				logger.Error("failed to update job status to completed", "error", err)
			}
			return
		}

		if errors.Is(lastErr, ErrPermanent) {
			logger.Error("job failed permanently, not retrying",
				"attempt", attempt,
				"error", lastErr)
			break
		}

		if attempt < r.config.MaxAttempts {
			logger.Warn("job attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", r.config.MaxAttempts,
				"retry_delay", r.config.RetryDelay,
				"error", lastErr)

			select {
			case <-time.After(r.config.RetryDelay):
			case <-r.ctx.Done():
				// Shutdown during backoff: leave the job in processing
				// state so recovery requeues it on the next start.
				logger.Info("shutdown during retry backoff, leaving job for recovery")
				return
			}
		}
	}

	logger.Error("job failed after exhausting attempts", "error", lastErr)
	if err := r.store.UpdateJobStatus(statusCtx, job.ID(), JobStatusFailed, lastErr.Error()); err != nil {
		logger.Error("failed to update job status to failed", "error", err)
	}

	r.errHandler(job, lastErr)
}

// stuckJobMonitor periodically checks for jobs that have been in
// "processing" state for too long and resets them.
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckJobCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuck, err := r.store.GetProcessingJobs(ctx, r.config.StuckJobAge)
			if err != nil {
				r.logger.Error("failed to check for stuck jobs", "error", err)
				continue
			}

			if len(stuck) == 0 {
				continue
			}

			r.logger.Info("found stuck jobs", "count", len(stuck))

			for _, rec := range stuck {
				if err := r.store.UpdateJobStatus(ctx, rec.ID, JobStatusPending,
					"reset after being stuck in processing state"); err != nil {
					r.logger.Error("failed to reset stuck job status",
						"job_id", rec.ID,
						"job_type", rec.Type,
						"error", err)
					continue
				}

				if r.restore == nil {
					continue
				}

				job, err := r.restore(rec)
				if err != nil {
					r.logger.Error("failed to restore stuck job",
						"job_id", rec.ID,
						"job_type", rec.Type,
						"error", err)
					continue
				}

				select {
				case r.jobChan <- job:
					r.logger.Info("requeued stuck job",
						"job_id", rec.ID,
						"job_type", rec.Type)
				default:
					r.logger.Error("failed to requeue stuck job, queue is full",
						"job_id", rec.ID,
						"job_type", rec.Type)
				}
			}
		}
	}
}
