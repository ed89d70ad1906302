package service

import (
	"context"

	"github.com/google/uuid"

	"task-service/internal/model"
	"task-service/internal/policy"
)

// DeleteTask removes the task's photos, then the row. Photo cleanup is best
// effort: a failure is reported in the notice and does not stop the delete.
// The returned task can be handed to RestoreTask within the undo window.
func (s *TaskStore) DeleteTask(ctx context.Context, principal model.Principal, id uuid.UUID) (*Outcome, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.CanDelete(principal, &current); !d.Allowed {
		return nil, denied(d)
	}

	var notice string
	if urls := current.PhotoURLs(); len(urls) > 0 {
		if err := s.removeBlobs(ctx, urls); err != nil {
			s.log.Warn().Err(err).Str("task_id", current.TaskID).Msg("failed to remove task photos")
			notice = "task deleted but some photos could not be removed"
		}
	}

	cmd := &command{removes: []uuid.UUID{id}}
	_, err = s.execute(ctx, cmd, s.cfg.Timeouts.Write, "delete task", func(ctx context.Context) ([]model.Task, error) {
		return nil, s.tasks.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.remember(current, principal.UserID)
	s.log.Info().
		Str("task_id", current.TaskID).
		Str("actor_id", principal.UserID.String()).
		Msg("task deleted")
	s.record(ctx, model.AuditActionDeleted, principal.UserID, &current, nil)
	return &Outcome{Task: &current, Changed: true, Notice: notice}, nil
}

// RestoreTask re-inserts a task deleted by this process within the undo
// window. The row gets a new id; every other column is restored from the
// snapshot taken at delete time.
func (s *TaskStore) RestoreTask(ctx context.Context, principal model.Principal, snapshot model.Task) (*model.Task, error) {
	unlock := s.locks.Lock(snapshot.ID.String())
	defer unlock()

	s.tombMu.Lock()
	tomb, ok := s.tombstones[snapshot.ID]
	s.tombMu.Unlock()
	if !ok || s.now().Sub(tomb.at) > s.cfg.UndoWindow {
		return nil, invalid("the undo window for this task has expired")
	}
	if tomb.deletedBy != principal.UserID && !principal.IsAdmin() {
		return nil, newError(ErrPermissionDenied, "only the user who deleted the task can undo it")
	}

	row := tomb.task.Clone()
	row.ID = uuid.New()
	row.Optimistic = true

	cmd := &command{upserts: []model.Task{row}}
	if row.NotificationNum != nil {
		cmd.reserve = []string{*row.NotificationNum}
	}
	rows, err := s.execute(ctx, cmd, s.cfg.Timeouts.Insert, "restore task", func(ctx context.Context) ([]model.Task, error) {
		restored := persistable(row)
		restored.CreatedAt = tomb.task.CreatedAt
		if err := s.tasks.Create(ctx, &restored); err != nil {
			return nil, err
		}
		return []model.Task{restored}, nil
	})
	if err != nil {
		return nil, err
	}

	s.tombMu.Lock()
	delete(s.tombstones, snapshot.ID)
	s.tombMu.Unlock()

	restored := rows[0]
	s.log.Info().
		Str("task_id", restored.TaskID).
		Str("previous_id", snapshot.ID.String()).
		Msg("task restored")
	s.record(ctx, model.AuditActionRestored, principal.UserID, nil, &restored)
	return &restored, nil
}

func (s *TaskStore) remember(task model.Task, deletedBy uuid.UUID) {
	now := s.now()
	s.tombMu.Lock()
	defer s.tombMu.Unlock()
	for id, tomb := range s.tombstones {
		if now.Sub(tomb.at) > s.cfg.UndoWindow {
			delete(s.tombstones, id)
		}
	}
	s.tombstones[task.ID] = tombstone{task: task.Clone(), deletedBy: deletedBy, at: now}
}
