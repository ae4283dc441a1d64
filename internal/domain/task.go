package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskUserIDEmpty is returned when a task's user ID is empty or nil.
	ErrTaskUserIDEmpty = errors.New("task user ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrTaskTitleTooLong is returned when a task's title exceeds MaxTitleLength.
	ErrTaskTitleTooLong = errors.New("task title is too long")

	// ErrTaskDescriptionTooLong is returned when a task's description exceeds
	// MaxDescriptionLength.
	ErrTaskDescriptionTooLong = errors.New("task description is too long")

	// ErrInvalidTaskStatus is returned when a task status is not one of the
	// known values.
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// Field length bounds for Task.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 2000
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values. New tasks always start as pending.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// IsValid reports whether the status is one of the known values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task represents a unit of work owned by a single user. Every read and
// write of a task is scoped to its owner; there is no shared visibility.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a new Task owned by the given user. It generates a new
// UUID, sets the creation/update timestamps, and forces the status to
// pending regardless of what the caller asked for.
// Returns an error if validation fails.
func NewTask(userID uuid.UUID, title, description string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if t.UserID == uuid.Nil {
		return ErrTaskUserIDEmpty
	}

	if t.Title == "" {
		return ErrTaskTitleEmpty
	}

	if len(t.Title) > MaxTitleLength {
		return ErrTaskTitleTooLong
	}

	if len(t.Description) > MaxDescriptionLength {
		return ErrTaskDescriptionTooLong
	}

	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}

	return nil
}

// SetStatus transitions the task to the given status and updates the
// UpdatedAt timestamp. Returns an error if the status is unknown.
func (t *Task) SetStatus(status TaskStatus) error {
	if !status.IsValid() {
		return ErrInvalidTaskStatus
	}

	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}
