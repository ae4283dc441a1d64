package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/events"
	"github.com/phrazzld/taskboard-api/internal/store"
)

// taskCreatedPayload is the persisted payload for a task-created
// broadcast job. It holds identifiers only; the task itself is refetched
// at execution time so the broadcast reflects current state.
type taskCreatedPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	UserID uuid.UUID `json:"user_id"`
}

// TaskCreatedJob announces a newly created task to its owner's channel.
// Execution waits a randomized interval before refetching the task, so
// the broadcast observes whatever happened to the task in the meantime.
type TaskCreatedJob struct {
	id        uuid.UUID
	payload   taskCreatedPayload
	rawJSON   []byte
	taskStore store.TaskStore
	publisher events.Publisher
	delayMin  time.Duration
	delayMax  time.Duration
	logger    *slog.Logger
}

var _ Job = (*TaskCreatedJob)(nil)

func (j *TaskCreatedJob) ID() uuid.UUID {
	return j.id
}

func (j *TaskCreatedJob) Type() string {
	return JobTypeTaskCreatedBroadcast
}

func (j *TaskCreatedJob) Payload() []byte {
	return j.rawJSON
}

// Execute waits the randomized delay, refetches the task, and publishes
// a task.created event to the owner's channel.
//
// A task that no longer exists is not an error: it was deleted during the
// wait and there is nothing left to announce. A task without an owner has
// no channel to publish to and can never succeed, so that fails
// permanently. Publish failures are transient and retried by the runner.
func (j *TaskCreatedJob) Execute(ctx context.Context) error {
	delay := j.delayMin
	if j.delayMax > j.delayMin {
		delay += time.Duration(rand.Int63n(int64(j.delayMax - j.delayMin)))
	}

	j.logger.Debug("waiting before broadcasting task creation",
		"task_id", j.payload.TaskID,
		"delay", delay)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	}

	task, err := j.taskStore.GetByID(ctx, j.payload.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			j.logger.Info("task deleted before broadcast, skipping",
				"task_id", j.payload.TaskID)
			return nil
		}
		return fmt.Errorf("failed to refetch task %s: %w", j.payload.TaskID, err)
	}

	if task.UserID == uuid.Nil {
		return fmt.Errorf("task %s has no owner to notify: %w", task.ID, ErrPermanent)
	}

	if err := j.publisher.Publish(ctx, events.TaskCreated{Task: *task}); err != nil {
		return fmt.Errorf("failed to publish task.created for task %s: %w", task.ID, err)
	}

	j.logger.Info("broadcast task creation",
		"task_id", task.ID,
		"user_id", task.UserID)

	return nil
}

// Dispatcher builds and enqueues broadcast jobs, and restores them from
// persisted records during recovery.
type Dispatcher struct {
	runner    *Runner
	taskStore store.TaskStore
	publisher events.Publisher
	delayMin  time.Duration
	delayMax  time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. delayMin and delayMax bound the
// randomized wait applied before each broadcast.
func NewDispatcher(
	runner *Runner,
	taskStore store.TaskStore,
	publisher events.Publisher,
	delayMin, delayMax time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		runner:    runner,
		taskStore: taskStore,
		publisher: publisher,
		delayMin:  delayMin,
		delayMax:  delayMax,
		logger:    logger,
	}
}

// EnqueueTaskCreated submits a broadcast job for the given task. The
// caller returns to its client immediately; the announcement happens in
// the background.
func (d *Dispatcher) EnqueueTaskCreated(ctx context.Context, taskID, userID uuid.UUID) error {
	job, err := d.newJob(uuid.New(), taskCreatedPayload{TaskID: taskID, UserID: userID})
	if err != nil {
		return err
	}

	if err := d.runner.Submit(ctx, job); err != nil {
		return fmt.Errorf("failed to submit task created job: %w", err)
	}

	return nil
}

// Restore turns a persisted job record back into an executable job.
// It satisfies RestoreFunc.
func (d *Dispatcher) Restore(record JobRecord) (Job, error) {
	if record.Type != JobTypeTaskCreatedBroadcast {
		return nil, fmt.Errorf("unknown job type %q", record.Type)
	}

	var payload taskCreatedPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	return d.newJob(record.ID, payload)
}

func (d *Dispatcher) newJob(id uuid.UUID, payload taskCreatedPayload) (*TaskCreatedJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	return &TaskCreatedJob{
		id:        id,
		payload:   payload,
		rawJSON:   raw,
		taskStore: d.taskStore,
		publisher: d.publisher,
		delayMin:  d.delayMin,
		delayMax:  d.delayMax,
		logger:    d.logger,
	}, nil
}
