// Package client provides a Go client for the task API: typed HTTP
// calls, a WebSocket subscriber for live task events, and a local task
// cache that reconciles server events with optimistic local edits.
package client

import (
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/events"
)

// PageMeta mirrors the pagination metadata returned by the list endpoint.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Page is one cached page of tasks plus its pagination metadata.
type Page struct {
	Tasks []domain.Task
	Meta  PageMeta
}

// Cache holds the client's view of one task page and reconciles it
// against incoming events and optimistic local edits. All methods are
// safe for concurrent use; the event subscriber and the UI typically
// drive it from different goroutines.
type Cache struct {
	mu      sync.Mutex
	page    Page
	pending map[uuid.UUID]func(*Page)
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		pending: make(map[uuid.UUID]func(*Page)),
	}
}

// Replace swaps the cached page wholesale, discarding any pending
// optimistic edits. Used after a fresh fetch from the server.
func (c *Cache) Replace(page Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = clonePage(page)
	c.pending = make(map[uuid.UUID]func(*Page))
}

// Snapshot returns a copy of the cached page.
func (c *Cache) Snapshot() Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clonePage(c.page)
}

// ApplyEvent reconciles a server event into the cached page.
func (c *Cache) ApplyEvent(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case events.TaskCreated:
		applyCreated(&c.page, e.Task)
	case events.TaskStatusUpdated:
		applyStatusUpdated(&c.page, e.Task)
	case events.TaskDeleted:
		applyDeleted(&c.page, e.TaskID)
	}
}

// applyCreated merges a created task into the page. If a task with the
// same ID already exists (an optimistic insert that was confirmed, or a
// duplicate delivery) it is replaced in place. Otherwise, on the first
// page the task is prepended, displacing the last entry when the page is
// full; on later pages only the total moves.
func applyCreated(page *Page, task domain.Task) {
	for i := range page.Tasks {
		if page.Tasks[i].ID == task.ID {
			page.Tasks[i] = task
			return
		}
	}

	page.Meta.Total++

	if page.Meta.CurrentPage > 1 {
		return
	}

	page.Tasks = append([]domain.Task{task}, page.Tasks...)
	if page.Meta.PerPage > 0 && len(page.Tasks) > page.Meta.PerPage {
		page.Tasks = page.Tasks[:page.Meta.PerPage]
	}
}

// applyStatusUpdated replaces the task in the page, if present. Events
// can arrive out of order relative to local edits, so an incoming
// snapshot older than the cached one is dropped: last write wins by
// updated_at.
func applyStatusUpdated(page *Page, task domain.Task) {
	for i := range page.Tasks {
		if page.Tasks[i].ID != task.ID {
			continue
		}
		if task.UpdatedAt.Before(page.Tasks[i].UpdatedAt) {
			return
		}
		page.Tasks[i] = task
		return
	}
}

// applyDeleted removes the task from the page if present and decrements
// the total. Repeated deliveries of the same deletion are no-ops.
func applyDeleted(page *Page, taskID uuid.UUID) {
	for i := range page.Tasks {
		if page.Tasks[i].ID == taskID {
			page.Tasks = append(page.Tasks[:i], page.Tasks[i+1:]...)
			if page.Meta.Total > 0 {
				page.Meta.Total--
			}
			return
		}
	}
}

func clonePage(page Page) Page {
	out := page
	out.Tasks = append([]domain.Task(nil), page.Tasks...)
	return out
}
