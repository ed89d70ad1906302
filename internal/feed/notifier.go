package feed

import (
	"github.com/google/uuid"
)

type NotificationKind string

const (
	KindNewTask       NotificationKind = "new_task"
	KindAssigned      NotificationKind = "assigned"
	KindUnassigned    NotificationKind = "unassigned"
	KindStatusChanged NotificationKind = "status_changed"
	KindPhotoAdded    NotificationKind = "photo_added"
)

// Notification is what a connected user is told about a change. Sound asks
// the client to play its audible cue.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	TaskID  uuid.UUID        `json:"task_id"`
	Code    string           `json:"code"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Sound   bool             `json:"sound"`
}

// Decide reports whether userID should be notified about ev. Inserts by
// other users always notify; updates notify when the user gained or lost
// the assignment, when the status changed, or when a photo category went
// from empty to non-empty. At most one notification is produced per event,
// in that order of precedence.
func Decide(ev Event, userID uuid.UUID) (Notification, bool) {
	switch ev.Type {
	case EventInsert:
		if ev.New == nil || ev.New.CreatorID == userID {
			return Notification{}, false
		}
		return notify(KindNewTask, ev.New, "New task created"), true

	case EventUpdate:
		if ev.New == nil || ev.Old == nil {
			return Notification{}, false
		}
		newRow, oldRow := ev.New, ev.Old
		wasAssignee := isAssignee(oldRow, userID)
		isNowAssignee := isAssignee(newRow, userID)
		switch {
		case isNowAssignee && !wasAssignee:
			return notify(KindAssigned, newRow, "Task assigned to you"), true
		case wasAssignee && !isNowAssignee:
			return notify(KindUnassigned, newRow, "You were unassigned from a task"), true
		case newRow.Status != oldRow.Status:
			return notify(KindStatusChanged, newRow, "Task is now "+string(newRow.Status)), true
		}
		if category, ok := firstPhoto(oldRow, newRow); ok {
			return notify(KindPhotoAdded, newRow, category+" photo added"), true
		}
	}
	return Notification{}, false
}

func notify(kind NotificationKind, row *Row, message string) Notification {
	return Notification{
		Kind:    kind,
		TaskID:  row.ID,
		Code:    row.TaskID,
		Title:   row.Title,
		Message: message,
		Sound:   true,
	}
}

func isAssignee(row *Row, userID uuid.UUID) bool {
	return row.AssigneeID != nil && *row.AssigneeID == userID
}

func firstPhoto(oldRow, newRow *Row) (string, bool) {
	switch {
	case oldRow.PhotoBeforeCount == 0 && newRow.PhotoBeforeCount > 0:
		return "Before", true
	case oldRow.PhotoAfterCount == 0 && newRow.PhotoAfterCount > 0:
		return "After", true
	case !oldRow.HasPermit && newRow.HasPermit:
		return "Permit", true
	}
	return "", false
}
