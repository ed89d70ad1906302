package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"task-service/internal/model"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Row is the compact task image carried by a change notification. Photo
// lists are reduced to counts to stay inside the NOTIFY payload limit.
type Row struct {
	ID               uuid.UUID        `json:"id"`
	TaskID           string           `json:"task_id"`
	Title            string           `json:"title"`
	CreatorID        uuid.UUID        `json:"creator_id"`
	AssigneeID       *uuid.UUID       `json:"assignee_id"`
	Status           model.TaskStatus `json:"status"`
	PhotoBeforeCount int              `json:"photo_before_count"`
	PhotoAfterCount  int              `json:"photo_after_count"`
	HasPermit        bool             `json:"has_permit"`
}

type Event struct {
	Type  EventType `json:"eventType"`
	Table string    `json:"table"`
	New   *Row      `json:"new"`
	Old   *Row      `json:"old"`
}

// TaskID returns the id of the row the event is about.
func (e Event) TaskID() uuid.UUID {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return uuid.Nil
}

func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode change event: %w", err)
	}
	ev.Type = EventType(strings.ToUpper(string(ev.Type)))
	switch ev.Type {
	case EventInsert, EventUpdate:
		if ev.New == nil {
			return Event{}, fmt.Errorf("%s event without new row", ev.Type)
		}
	case EventDelete:
		if ev.Old == nil {
			return Event{}, fmt.Errorf("delete event without old row")
		}
	default:
		return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return ev, nil
}
