package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/taskboard-api/internal/domain"
)

// TaskPage is one page of a user's tasks, newest first, together with the
// total number of tasks the user owns. The caller derives pagination
// metadata (last page, etc.) from the total and the requested page size.
type TaskPage struct {
	Tasks []domain.Task
	Total int
}

// TaskStore defines the interface for task data persistence.
// All read and write operations are scoped to the owning user; a task
// belonging to another user behaves exactly like a missing one
// (ErrTaskNotFound).
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid,
	// or ErrInvalidEntity if the owner does not exist.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID without owner scoping.
	// It exists for the background workflow, which re-verifies a task after
	// its creating request has completed. Returns ErrTaskNotFound if the
	// task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetForOwner retrieves a task by ID, scoped to the given owner.
	// Returns ErrTaskNotFound if the task does not exist or belongs to a
	// different user.
	GetForOwner(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error)

	// ListByOwner returns one page of the owner's tasks ordered newest
	// first, plus the owner's total task count. Page numbering starts at 1.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*TaskPage, error)

	// UpdateStatus sets the status of the owner's task and refreshes its
	// updated_at timestamp. Returns the updated task, or ErrTaskNotFound if
	// the task no longer exists or belongs to a different user.
	UpdateStatus(ctx context.Context, ownerID, taskID uuid.UUID, status domain.TaskStatus) (*domain.Task, error)

	// Delete removes the owner's task. Returns ErrTaskNotFound if the task
	// was already deleted or belongs to a different user.
	Delete(ctx context.Context, ownerID, taskID uuid.UUID) error
}
