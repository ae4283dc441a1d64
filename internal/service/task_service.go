// Package service contains the application services that sit between the
// HTTP handlers and the stores. Services enforce ownership, coordinate
// persistence with event publication, and hand long-running work to the
// background runner.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/events"
	"github.com/phrazzld/taskboard-api/internal/store"
)

// Enqueuer hands newly created tasks to the background runner for the
// post-creation broadcast workflow.
type Enqueuer interface {
	EnqueueTaskCreated(ctx context.Context, taskID, userID uuid.UUID) error
}

// TaskService implements the task operations exposed by the API. All
// operations are scoped to the requesting user; tasks owned by someone
// else are reported as not found.
type TaskService struct {
	taskStore store.TaskStore
	enqueuer  Enqueuer
	publisher events.Publisher
	logger    *slog.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(
	taskStore store.TaskStore,
	enqueuer Enqueuer,
	publisher events.Publisher,
	logger *slog.Logger,
) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskService{
		taskStore: taskStore,
		enqueuer:  enqueuer,
		publisher: publisher,
		logger:    logger.With("component", "task_service"),
	}
}

// List returns one page of the user's tasks, newest first, along with the
// total count across all pages.
func (s *TaskService) List(ctx context.Context, userID uuid.UUID, page, pageSize int) (*store.TaskPage, error) {
	result, err := s.taskStore.ListByOwner(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return result, nil
}

// Get returns a single task owned by the user.
// Returns store.ErrTaskNotFound for missing or foreign tasks.
func (s *TaskService) Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.GetForOwner(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Create validates and persists a new task for the user, then enqueues
// the background broadcast workflow. The caller gets the stored task back
// immediately; the task.created event is published later by the runner.
//
// A failure to enqueue is logged but not surfaced: the task exists either
// way, only its announcement is lost.
func (s *TaskService) Create(ctx context.Context, userID uuid.UUID, title, description string) (*domain.Task, error) {
	task, err := domain.NewTask(userID, title, description)
	if err != nil {
		return nil, err
	}

	if err := s.taskStore.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.enqueuer.EnqueueTaskCreated(ctx, task.ID, task.UserID); err != nil {
		s.logger.Error("failed to enqueue task created broadcast",
			"task_id", task.ID,
			"user_id", task.UserID,
			"error", err)
	}

	return task, nil
}

// UpdateStatus changes the status of a task owned by the user and
// publishes a task.status.updated event carrying both the new snapshot
// and the previous status.
//
// Publish failures are logged but not surfaced: the status change is
// already durable and must not appear to have failed.
func (s *TaskService) UpdateStatus(ctx context.Context, userID, taskID uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	if !status.IsValid() {
		return nil, domain.ErrInvalidTaskStatus
	}

	prev, err := s.taskStore.GetForOwner(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	task, err := s.taskStore.UpdateStatus(ctx, userID, taskID, status)
	if err != nil {
		return nil, err
	}

	ev := events.TaskStatusUpdated{Task: *task, OldStatus: prev.Status}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish task status update",
			"task_id", task.ID,
			"user_id", task.UserID,
			"error", err)
	}

	return task, nil
}

// Delete removes a task owned by the user and publishes a task.deleted
// event identifying the removed task.
func (s *TaskService) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	task, err := s.taskStore.GetForOwner(ctx, userID, taskID)
	if err != nil {
		return err
	}

	if err := s.taskStore.Delete(ctx, userID, taskID); err != nil {
		return err
	}

	ev := events.TaskDeleted{TaskID: task.ID, UserID: task.UserID}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish task deletion",
			"task_id", task.ID,
			"user_id", task.UserID,
			"error", err)
	}

	return nil
}
