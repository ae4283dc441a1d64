package api

import (
	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/store"
)

// Common request/response structures

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for the login endpoint.
type AuthResponse struct {
	// AccessToken is the JWT token used for API authorization
	AccessToken string `json:"access_token"`

	// User is the authenticated user
	User domain.User `json:"user"`
}

// CreateTaskRequest defines the payload for creating a task.
// The limits mirror the database column constraints.
type CreateTaskRequest struct {
	Title       string `json:"title"       validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateTaskStatusRequest defines the payload for the status update endpoint.
type UpdateTaskStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress done"`
}

// DataResponse wraps a single resource in a data envelope.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// PaginationMeta describes the position of a page within the full result set.
type PaginationMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// PaginatedResponse wraps a page of resources together with pagination
// metadata.
type PaginatedResponse struct {
	Data interface{}    `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// NewTaskPageResponse builds the paginated response for a task listing.
// last_page is at least 1 even when the result set is empty.
func NewTaskPageResponse(page *store.TaskPage, currentPage, perPage int) PaginatedResponse {
	lastPage := (page.Total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	// A nil slice would serialize as null; the client expects an array.
	tasks := page.Tasks
	if tasks == nil {
		tasks = []domain.Task{}
	}

	return PaginatedResponse{
		Data: tasks,
		Meta: PaginationMeta{
			CurrentPage: currentPage,
			LastPage:    lastPage,
			PerPage:     perPage,
			Total:       page.Total,
		},
	}
}
