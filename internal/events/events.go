package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskboard-api/internal/domain"
)

// Wire names for the task lifecycle events. Clients subscribe to a private
// per-user channel and dispatch on these names.
const (
	EventTaskCreated       = "task.created"
	EventTaskStatusUpdated = "task.status.updated"
	EventTaskDeleted       = "task.deleted"
)

// ChannelPrefix is the prefix of every per-user notification channel.
const ChannelPrefix = "tasks."

// ChannelFor returns the private channel name for the given user.
// The name is derived deterministically from the user ID so publishers and
// subscribers agree without coordination.
func ChannelFor(userID uuid.UUID) string {
	return ChannelPrefix + userID.String()
}

// Event is the closed set of task lifecycle notifications. Exactly three
// types implement it: TaskCreated, TaskStatusUpdated, and TaskDeleted.
// Using a sealed interface keeps client dispatch exhaustive instead of
// stringly-typed.
type Event interface {
	// Name returns the wire name of the event.
	Name() string

	// Channel returns the private channel the event is delivered on.
	Channel() string

	isEvent()
}

// TaskCreated announces a newly created task. It carries a full snapshot of
// the task as it existed when the background workflow verified it.
type TaskCreated struct {
	Task domain.Task `json:"task"`
}

// Name implements Event.
func (e TaskCreated) Name() string { return EventTaskCreated }

// Channel implements Event.
func (e TaskCreated) Channel() string { return ChannelFor(e.Task.UserID) }

func (e TaskCreated) isEvent() {}

// TaskStatusUpdated announces a status transition. It carries a full
// snapshot with the new status, plus the status the task had before the
// update.
type TaskStatusUpdated struct {
	Task      domain.Task       `json:"task"`
	OldStatus domain.TaskStatus `json:"old_status"`
}

// Name implements Event.
func (e TaskStatusUpdated) Name() string { return EventTaskStatusUpdated }

// Channel implements Event.
func (e TaskStatusUpdated) Channel() string { return ChannelFor(e.Task.UserID) }

func (e TaskStatusUpdated) isEvent() {}

// TaskDeleted announces a deletion. It deliberately carries no snapshot:
// the row no longer exists, so only the identifiers are published.
type TaskDeleted struct {
	TaskID uuid.UUID `json:"task_id"`
	UserID uuid.UUID `json:"user_id"`
}

// Name implements Event.
func (e TaskDeleted) Name() string { return EventTaskDeleted }

// Channel implements Event.
func (e TaskDeleted) Channel() string { return ChannelFor(e.UserID) }

func (e TaskDeleted) isEvent() {}

// envelope is the wire representation of an event: a name tag plus the
// variant-specific payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Marshal serializes the event into its wire envelope.
func Marshal(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return json.Marshal(envelope{Event: ev.Name(), Data: data})
}

// Unmarshal decodes a wire envelope back into one of the three event
// variants. Returns an error for unknown event names or malformed payloads.
func Unmarshal(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	switch env.Event {
	case EventTaskCreated:
		var ev TaskCreated
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		return ev, nil

	case EventTaskStatusUpdated:
		var ev TaskStatusUpdated
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		return ev, nil

	case EventTaskDeleted:
		var ev TaskDeleted
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("unknown event name %q", env.Event)
	}
}
