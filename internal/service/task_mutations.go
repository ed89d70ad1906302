package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"task-service/internal/model"
	"task-service/internal/policy"
)

type UpdateTaskInput struct {
	Title           *string
	Description     *string
	Location        Nullable[string]
	EquipmentNumber *string
	NotificationNum Nullable[string]
	TypeOfWork      Nullable[model.TypeOfWork]
	Priority        *model.TaskPriority
	Status          *model.TaskStatus
	AssigneeID      Nullable[uuid.UUID]
	DueDate         Nullable[time.Time]
}

const noticeCompletedStatusKept = "status of a completed task is not changed by an edit; use a status change instead"

// ChangeTaskStatus moves a task through the status state machine.
// confirmed must be set to revert a completed task to in-progress.
func (s *TaskStore) ChangeTaskStatus(ctx context.Context, principal model.Principal, id uuid.UUID, target model.TaskStatus, confirmed bool) (*model.Task, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.CanTransition(principal, &current, target, confirmed); !d.Allowed {
		return nil, denied(d)
	}

	next := current.Clone()
	applyStatus(&next, principal.UserID, target, s.now())

	saved, err := s.writeTask(ctx, next, nil, "change task status")
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("task_id", saved.TaskID).
		Str("from", string(current.Status)).
		Str("to", string(saved.Status)).
		Str("actor_id", principal.UserID.String()).
		Msg("task status changed")
	s.record(ctx, model.AuditActionStatusChanged, principal.UserID, &current, &saved)
	return &saved, nil
}

// AssignTask sets or clears the assignee. Assigning the current assignee
// again is reported as unchanged, not as an error.
func (s *TaskStore) AssignTask(ctx context.Context, principal model.Principal, id uuid.UUID, assigneeID *uuid.UUID) (*Outcome, error) {
	return s.assign(ctx, principal, id, assigneeID, false)
}

func (s *TaskStore) assign(ctx context.Context, principal model.Principal, id uuid.UUID, assigneeID *uuid.UUID, bulk bool) (*Outcome, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}

	var assignee *model.Profile
	if assigneeID != nil && *assigneeID != uuid.Nil {
		assignee, err = s.loadProfile(ctx, *assigneeID)
		if err != nil {
			return nil, err
		}
	}

	if d := policy.CanAssign(principal, &current, assignee); !d.Allowed {
		return nil, denied(d)
	}

	next := current.Clone()
	applyAssignment(&next, principal.UserID, assignee)
	if sameUUID(current.AssigneeID, next.AssigneeID) && current.Status == next.Status {
		notice := "task is already unassigned"
		if assignee != nil {
			notice = "task is already assigned to " + assignee.FullName()
		}
		return &Outcome{Task: &current, Notice: notice}, nil
	}

	if bulk {
		if d := policy.CanBulkReassign(principal, &current, assignee, s.now()); !d.Allowed {
			return nil, denied(d)
		}
	}

	saved, err := s.writeTask(ctx, next, nil, "assign task")
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("task_id", saved.TaskID).
		Str("actor_id", principal.UserID.String()).
		Bool("cleared", assignee == nil).
		Msg("task assignment changed")
	s.record(ctx, model.AuditActionAssigned, principal.UserID, &current, &saved)
	return &Outcome{Task: &saved, Changed: true}, nil
}

// UpdateTask applies a partial edit. Once a task is completed only an admin
// may edit it, and the status field is then dropped from the edit with a
// notice rather than silently reopening the task.
func (s *TaskStore) UpdateTask(ctx context.Context, principal model.Principal, id uuid.UUID, input UpdateTaskInput) (*Outcome, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.CanEdit(principal, &current); !d.Allowed {
		return nil, denied(d)
	}

	next := current.Clone()
	if err := applyFields(&next, input, s.now()); err != nil {
		return nil, err
	}

	if input.AssigneeID.Set && !sameUUID(input.AssigneeID.Value, current.AssigneeID) {
		var assignee *model.Profile
		if input.AssigneeID.Value != nil && *input.AssigneeID.Value != uuid.Nil {
			assignee, err = s.loadProfile(ctx, *input.AssigneeID.Value)
			if err != nil {
				return nil, err
			}
		}
		if d := policy.CanAssign(principal, &current, assignee); !d.Allowed {
			return nil, denied(d)
		}
		applyAssignment(&next, principal.UserID, assignee)
	}

	var notices []string
	if input.Status != nil && *input.Status != next.Status {
		if current.Status == model.TaskStatusCompleted {
			notices = append(notices, noticeCompletedStatusKept)
		} else {
			if d := policy.CanTransition(principal, &next, *input.Status, false); !d.Allowed {
				return nil, denied(d)
			}
			applyStatus(&next, principal.UserID, *input.Status, s.now())
		}
	}

	var reserve []string
	if next.NotificationNum != nil && !sameString(next.NotificationNum, current.NotificationNum) {
		if err := s.checkNotificationNum(ctx, *next.NotificationNum, &current.ID); err != nil {
			return nil, err
		}
		reserve = []string{*next.NotificationNum}
	}

	if len(diffTask(current, next)) == 0 {
		notice := "nothing to update"
		if len(notices) > 0 {
			notice = strings.Join(notices, "; ")
		}
		return &Outcome{Task: &current, Notice: notice}, nil
	}

	saved, err := s.writeTask(ctx, next, reserve, "update task")
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("task_id", saved.TaskID).
		Str("actor_id", principal.UserID.String()).
		Msg("task updated")
	s.record(ctx, model.AuditActionUpdated, principal.UserID, &current, &saved)
	return &Outcome{Task: &saved, Changed: true, Notice: strings.Join(notices, "; ")}, nil
}

// writeTask persists next over its stored row through the optimistic
// sequence. The caller holds the lock for next.ID.
func (s *TaskStore) writeTask(ctx context.Context, next model.Task, reserve []string, op string) (model.Task, error) {
	cmd := &command{upserts: []model.Task{next}, reserve: reserve}
	rows, err := s.execute(ctx, cmd, s.cfg.Timeouts.Write, op, func(ctx context.Context) ([]model.Task, error) {
		row := next.Clone()
		row.Optimistic = false
		if err := s.tasks.Update(ctx, &row); err != nil {
			return nil, err
		}
		return []model.Task{row}, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return rows[0], nil
}

func applyFields(next *model.Task, input UpdateTaskInput, now time.Time) error {
	if input.Title != nil {
		title, err := normalizeTitle(*input.Title)
		if err != nil {
			return err
		}
		next.Title = title
	}
	if input.Description != nil {
		next.Description = strings.TrimSpace(*input.Description)
	}
	if input.Location.Set {
		location, err := normalizeLocation(input.Location.Value)
		if err != nil {
			return err
		}
		next.Location = location
	}
	if input.EquipmentNumber != nil {
		equipment, err := normalizeEquipment(*input.EquipmentNumber)
		if err != nil {
			return err
		}
		next.EquipmentNumber = equipment
	}
	if input.NotificationNum.Set {
		num, err := normalizeNotificationNum(input.NotificationNum.Value)
		if err != nil {
			return err
		}
		next.NotificationNum = num
	}
	if input.TypeOfWork.Set {
		if err := validateTypeOfWork(input.TypeOfWork.Value); err != nil {
			return err
		}
		next.TypeOfWork = input.TypeOfWork.Value
	}
	if input.Priority != nil {
		priority, err := normalizePriority(*input.Priority)
		if err != nil {
			return err
		}
		next.Priority = priority
	}
	if input.DueDate.Set && !sameDate(next.DueDate, input.DueDate.Value) {
		due, err := normalizeDueDate(input.DueDate.Value, now)
		if err != nil {
			return err
		}
		next.DueDate = due
	}
	return nil
}

// applyStatus sets target and keeps the closure and assignment columns
// consistent with it.
func applyStatus(next *model.Task, actorID uuid.UUID, target model.TaskStatus, now time.Time) {
	next.Status = target
	if target == model.TaskStatusCompleted {
		closedBy := actorID
		closedAt := now
		next.ClosedByID = &closedBy
		next.ClosedAt = &closedAt
	} else {
		next.ClosedByID = nil
		next.ClosedAt = nil
	}
	if target == model.TaskStatusUnassigned {
		next.AssigneeID = nil
		next.AssignedByID = nil
	}
}

// applyAssignment sets or clears the assignee. Only the unassigned and
// assigned statuses follow the assignee; other statuses are left alone.
func applyAssignment(next *model.Task, actorID uuid.UUID, assignee *model.Profile) {
	if assignee == nil {
		next.AssigneeID = nil
		next.AssignedByID = nil
		if next.Status == model.TaskStatusAssigned {
			next.Status = model.TaskStatusUnassigned
		}
		return
	}
	if next.IsAssignee(assignee.ID) {
		return
	}
	assigneeID := assignee.ID
	assignedBy := actorID
	next.AssigneeID = &assigneeID
	next.AssignedByID = &assignedBy
	if next.Status == model.TaskStatusUnassigned {
		next.Status = model.TaskStatusAssigned
	}
}

func sameUUID(a, b *uuid.UUID) bool {
	aSet := a != nil && *a != uuid.Nil
	bSet := b != nil && *b != uuid.Nil
	if aSet != bSet {
		return false
	}
	return !aSet || *a == *b
}

// sameDate compares calendar dates; a due date that is already stored is
// accepted again even once it has passed.
func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
