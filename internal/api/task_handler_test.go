package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/events"
)

func TestCreateTask(t *testing.T) {
	t.Run("creates task and enqueues broadcast", func(t *testing.T) {
		f := newAPIFixture(t)
		user, token := f.seedUser(t, "dev@example.com")

		rec := f.do(t, http.MethodPost, "/tasks", token, CreateTaskRequest{
			Title:       "ship the release",
			Description: "tag and push",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Data domain.Task `json:"data"`
		}
		decodeBody(t, rec, &resp)
		assert.Equal(t, "ship the release", resp.Data.Title)
		assert.Equal(t, domain.TaskStatusPending, resp.Data.Status)
		assert.Equal(t, user.ID, resp.Data.UserID)

		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		require.Len(t, f.enqueuer.enqueued, 1)
		assert.Equal(t, resp.Data.ID, f.enqueuer.enqueued[0])
	})

	t.Run("missing title returns 400", func(t *testing.T) {
		f := newAPIFixture(t)
		_, token := f.seedUser(t, "dev@example.com")

		rec := f.do(t, http.MethodPost, "/tasks", token, CreateTaskRequest{Description: "no title"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("overlong title returns 400", func(t *testing.T) {
		f := newAPIFixture(t)
		_, token := f.seedUser(t, "dev@example.com")

		long := make([]byte, domain.MaxTitleLength+1)
		for i := range long {
			long[i] = 'x'
		}

		rec := f.do(t, http.MethodPost, "/tasks", token, CreateTaskRequest{Title: string(long)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated returns 401", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/tasks", "", CreateTaskRequest{Title: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestListTasks(t *testing.T) {
	t.Run("paginates newest first with meta", func(t *testing.T) {
		f := newAPIFixture(t)
		user, token := f.seedUser(t, "dev@example.com")

		for i := 0; i < 7; i++ {
			f.seedTask(t, user.ID, fmt.Sprintf("task %d", i))
		}

		rec := f.do(t, http.MethodGet, "/tasks?page=1&limit=5", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []domain.Task  `json:"data"`
			Meta PaginationMeta `json:"meta"`
		}
		decodeBody(t, rec, &resp)
		assert.Len(t, resp.Data, 5)
		assert.Equal(t, PaginationMeta{CurrentPage: 1, LastPage: 2, PerPage: 5, Total: 7}, resp.Meta)

		rec = f.do(t, http.MethodGet, "/tasks?page=2&limit=5", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decodeBody(t, rec, &resp)
		assert.Len(t, resp.Data, 2)
		assert.Equal(t, 2, resp.Meta.CurrentPage)
	})

	t.Run("empty result set returns an array, not null", func(t *testing.T) {
		f := newAPIFixture(t)
		_, token := f.seedUser(t, "dev@example.com")

		rec := f.do(t, http.MethodGet, "/tasks", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"data":[]`)
	})

	t.Run("does not include other users' tasks", func(t *testing.T) {
		f := newAPIFixture(t)
		_, token := f.seedUser(t, "dev@example.com")
		other, _ := f.seedUser(t, "other@example.com")
		f.seedTask(t, other.ID, "not yours")

		rec := f.do(t, http.MethodGet, "/tasks", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []domain.Task  `json:"data"`
			Meta PaginationMeta `json:"meta"`
		}
		decodeBody(t, rec, &resp)
		assert.Empty(t, resp.Data)
		assert.Equal(t, 0, resp.Meta.Total)
	})

	t.Run("nonsense pagination params fall back to defaults", func(t *testing.T) {
		f := newAPIFixture(t)
		_, token := f.seedUser(t, "dev@example.com")

		rec := f.do(t, http.MethodGet, "/tasks?page=banana&limit=-5", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Meta PaginationMeta `json:"meta"`
		}
		decodeBody(t, rec, &resp)
		assert.Equal(t, 1, resp.Meta.CurrentPage)
		assert.Equal(t, defaultPageSize, resp.Meta.PerPage)
	})
}

func TestGetTask(t *testing.T) {
	f := newAPIFixture(t)
	user, token := f.seedUser(t, "dev@example.com")
	task := f.seedTask(t, user.ID, "mine")

	_, otherToken := f.seedUser(t, "other@example.com")

	t.Run("returns owned task", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/tasks/"+task.ID.String(), token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data domain.Task `json:"data"`
		}
		decodeBody(t, rec, &resp)
		assert.Equal(t, task.ID, resp.Data.ID)
	})

	t.Run("foreign task returns 404", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/tasks/"+task.ID.String(), otherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id returns 400", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/tasks/not-a-uuid", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	t.Run("updates status and publishes event", func(t *testing.T) {
		f := newAPIFixture(t)
		user, token := f.seedUser(t, "dev@example.com")
		task := f.seedTask(t, user.ID, "mine")

		rec := f.do(t, http.MethodPatch, "/tasks/"+task.ID.String()+"/status", token,
			UpdateTaskStatusRequest{Status: "in_progress"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data domain.Task `json:"data"`
		}
		decodeBody(t, rec, &resp)
		assert.Equal(t, domain.TaskStatusInProgress, resp.Data.Status)

		published := f.publisher.events()
		require.Len(t, published, 1)
		ev, ok := published[0].(events.TaskStatusUpdated)
		require.True(t, ok)
		assert.Equal(t, domain.TaskStatusPending, ev.OldStatus)
	})

	t.Run("unknown status returns 400", func(t *testing.T) {
		f := newAPIFixture(t)
		user, token := f.seedUser(t, "dev@example.com")
		task := f.seedTask(t, user.ID, "mine")

		rec := f.do(t, http.MethodPatch, "/tasks/"+task.ID.String()+"/status", token,
			UpdateTaskStatusRequest{Status: "archived"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("foreign task returns 404", func(t *testing.T) {
		f := newAPIFixture(t)
		user, _ := f.seedUser(t, "dev@example.com")
		task := f.seedTask(t, user.ID, "mine")
		_, otherToken := f.seedUser(t, "other@example.com")

		rec := f.do(t, http.MethodPatch, "/tasks/"+task.ID.String()+"/status", otherToken,
			UpdateTaskStatusRequest{Status: "done"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteTask(t *testing.T) {
	t.Run("deletes and publishes event", func(t *testing.T) {
		f := newAPIFixture(t)
		user, token := f.seedUser(t, "dev@example.com")
		task := f.seedTask(t, user.ID, "mine")

		rec := f.do(t, http.MethodDelete, "/tasks/"+task.ID.String(), token, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, "/tasks/"+task.ID.String(), token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		published := f.publisher.events()
		require.Len(t, published, 1)
		ev, ok := published[0].(events.TaskDeleted)
		require.True(t, ok)
		assert.Equal(t, task.ID, ev.TaskID)
		assert.Equal(t, user.ID, ev.UserID)
	})

	t.Run("foreign task returns 404 and stays stored", func(t *testing.T) {
		f := newAPIFixture(t)
		user, token := f.seedUser(t, "dev@example.com")
		task := f.seedTask(t, user.ID, "mine")
		_, otherToken := f.seedUser(t, "other@example.com")

		rec := f.do(t, http.MethodDelete, "/tasks/"+task.ID.String(), otherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.do(t, http.MethodGet, "/tasks/"+task.ID.String(), token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
