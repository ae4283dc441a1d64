package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/domain"
)

// Optimistic edits apply a local change immediately and retain an
// inverse patch. When the server call succeeds the edit is confirmed and
// the inverse is discarded; when it fails the inverse rolls the page
// back to its previous state.

// OptimisticCreate inserts a locally built task at the head of the page
// before the server has acknowledged it. The returned edit ID is used
// with ConfirmCreate or Rollback once the request settles.
func (c *Cache) OptimisticCreate(task domain.Task) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	editID := uuid.New()
	taskID := task.ID

	c.page.Tasks = append([]domain.Task{task}, c.page.Tasks...)
	c.page.Meta.Total++

	c.pending[editID] = func(page *Page) {
		applyDeleted(page, taskID)
	}

	return editID
}

// ConfirmCreate replaces the optimistic placeholder with the task the
// server actually stored (authoritative ID and timestamps) and discards
// the inverse patch.
func (c *Cache) ConfirmCreate(editID uuid.UUID, placeholderID uuid.UUID, stored domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, editID)

	for i := range c.page.Tasks {
		if c.page.Tasks[i].ID == placeholderID {
			c.page.Tasks[i] = stored
			return
		}
	}
}

// OptimisticUpdateStatus applies a status change locally. Returns false
// if the task is not in the cached page.
func (c *Cache) OptimisticUpdateStatus(taskID uuid.UUID, status domain.TaskStatus) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.page.Tasks {
		if c.page.Tasks[i].ID != taskID {
			continue
		}

		prev := c.page.Tasks[i]
		c.page.Tasks[i].Status = status
		c.page.Tasks[i].UpdatedAt = time.Now().UTC()

		editID := uuid.New()
		c.pending[editID] = func(page *Page) {
			for j := range page.Tasks {
				if page.Tasks[j].ID == prev.ID {
					page.Tasks[j] = prev
					return
				}
			}
		}
		return editID, true
	}

	return uuid.Nil, false
}

// OptimisticDelete removes a task locally. Returns false if the task is
// not in the cached page.
func (c *Cache) OptimisticDelete(taskID uuid.UUID) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.page.Tasks {
		if c.page.Tasks[i].ID != taskID {
			continue
		}

		prev := c.page.Tasks[i]
		index := i

		c.page.Tasks = append(c.page.Tasks[:i], c.page.Tasks[i+1:]...)
		if c.page.Meta.Total > 0 {
			c.page.Meta.Total--
		}

		editID := uuid.New()
		c.pending[editID] = func(page *Page) {
			at := index
			if at > len(page.Tasks) {
				at = len(page.Tasks)
			}
			page.Tasks = append(page.Tasks[:at],
				append([]domain.Task{prev}, page.Tasks[at:]...)...)
			page.Meta.Total++
		}
		return editID, true
	}

	return uuid.Nil, false
}

// Confirm discards the inverse patch for a settled edit, keeping the
// optimistic state.
func (c *Cache) Confirm(editID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, editID)
}

// Rollback undoes an optimistic edit whose server call failed.
func (c *Cache) Rollback(editID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inverse, ok := c.pending[editID]
	if !ok {
		return
	}
	delete(c.pending, editID)
	inverse(&c.page)
}
