package service

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"task-service/internal/model"
)

// diffTask returns the changed columns of after, keyed by json name.
func diffTask(before, after model.Task) map[string]any {
	changes := make(map[string]any)
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			changes[name] = b
		}
	}
	add("title", before.Title, after.Title)
	add("description", before.Description, after.Description)
	add("location", before.Location, after.Location)
	add("equipment_number", before.EquipmentNumber, after.EquipmentNumber)
	add("notification_num", before.NotificationNum, after.NotificationNum)
	add("type_of_work", before.TypeOfWork, after.TypeOfWork)
	add("priority", before.Priority, after.Priority)
	add("status", before.Status, after.Status)
	add("assignee_id", before.AssigneeID, after.AssigneeID)
	add("assigned_by_id", before.AssignedByID, after.AssignedByID)
	add("closed_by_id", before.ClosedByID, after.ClosedByID)
	add("closed_at", before.ClosedAt, after.ClosedAt)
	add("photo_before_urls", []string(before.PhotoBeforeURLs), []string(after.PhotoBeforeURLs))
	add("photo_after_urls", []string(before.PhotoAfterURLs), []string(after.PhotoAfterURLs))
	add("photo_permit_url", before.PhotoPermitURL, after.PhotoPermitURL)
	add("due_date", before.DueDate, after.DueDate)
	return changes
}

// record writes an audit row. Failures are logged and otherwise ignored.
func (s *TaskStore) record(ctx context.Context, action model.AuditAction, actorID uuid.UUID, before, after *model.Task) {
	if s.audits == nil {
		return
	}
	entry := &model.TaskAudit{
		Action:  action,
		ActorID: actorID,
	}
	switch {
	case after != nil:
		entry.TaskID = after.ID
	case before != nil:
		entry.TaskID = before.ID
	}
	if before != nil && after != nil {
		if before.Status != after.Status {
			from, to := before.Status, after.Status
			entry.FromStatus = &from
			entry.ToStatus = &to
		}
		if changes := diffTask(*before, *after); len(changes) > 0 {
			if raw, err := json.Marshal(changes); err == nil {
				entry.Changes = datatypes.JSON(raw)
			}
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeouts.Write)
	defer cancel()
	if err := s.audits.Record(writeCtx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("task_id", entry.TaskID.String()).
			Str("action", string(action)).
			Msg("failed to record task audit")
	}
}
