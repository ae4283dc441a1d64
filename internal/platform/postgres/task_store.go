package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/platform/logger"
	"github.com/phrazzld/taskboard-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
//
// All owner-scoped methods filter by user_id in SQL, so a task belonging
// to another user behaves exactly like a missing task.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	return &PostgresTaskStore{db: db}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = "id, user_id, title, description, status, created_at, updated_at"

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, user_id, title, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Status,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"user_id", task.UserID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID. It is not owner-scoped and
// exists for internal workflows that hold a task ID but no requesting
// user. Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return s.scanTask(ctx, query, id)
}

// GetForOwner implements store.TaskStore.GetForOwner.
// Returns store.ErrTaskNotFound for missing tasks and for tasks owned by
// a different user.
func (s *PostgresTaskStore) GetForOwner(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	return s.scanTask(ctx, query, taskID, ownerID)
}

// ListByOwner implements store.TaskStore.ListByOwner. Tasks are returned
// newest first. page is 1-based; values below 1 are clamped to 1.
func (s *PostgresTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*store.TaskPage, error) {
	log := logger.FromContext(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	offset := (page - 1) * pageSize

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks WHERE user_id = $1`
	if err := s.db.QueryRowContext(ctx, countQuery, ownerID).Scan(&total); err != nil {
		log.Error("failed to count tasks", "user_id", ownerID, "error", err)
		return nil, MapError(err)
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, pageSize, offset)
	if err != nil {
		log.Error("failed to list tasks", "user_id", ownerID, "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]domain.Task, 0, pageSize)
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			log.Error("failed to scan task row", "user_id", ownerID, "error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", "user_id", ownerID, "error", err)
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return &store.TaskPage{Tasks: tasks, Total: total}, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus. The update is
// owner-scoped and returns the task as stored after the change.
func (s *PostgresTaskStore) UpdateStatus(ctx context.Context, ownerID, taskID uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidTaskStatus)
	}

	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4
		RETURNING ` + taskColumns

	now := time.Now().UTC()

	task, err := s.scanTask(ctx, query, status, now, taskID, ownerID)
	if err != nil {
		if !store.IsNotFoundError(err) {
			log.Error("failed to update task status",
				"task_id", taskID,
				"user_id", ownerID,
				"error", err)
		}
		return nil, err
	}

	return task, nil
}

// Delete implements store.TaskStore.Delete. The delete is owner-scoped.
// Returns store.ErrTaskNotFound if no matching task exists.
func (s *PostgresTaskStore) Delete(ctx context.Context, ownerID, taskID uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `DELETE FROM tasks WHERE id = $1 AND user_id = $2`

	result, err := s.db.ExecContext(ctx, query, taskID, ownerID)
	if err != nil {
		log.Error("failed to delete task",
			"task_id", taskID,
			"user_id", ownerID,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return fmt.Errorf("%w: %v", store.ErrTaskNotFound, err)
	}

	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTaskRow(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var description sql.NullString
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&description,
		&task.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.CreatedAt = createdAt.UTC()
	task.UpdatedAt = updatedAt.UTC()

	return &task, nil
}

func (s *PostgresTaskStore) scanTask(ctx context.Context, query string, args ...any) (*domain.Task, error) {
	task, err := scanTaskRow(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		mapped := MapError(err)
		if store.IsNotFoundError(mapped) {
			return nil, fmt.Errorf("%w: %v", store.ErrTaskNotFound, err)
		}
		return nil, mapped
	}
	return task, nil
}
