package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"task-service/internal/model"
	"task-service/internal/policy"
	"task-service/internal/repository"
)

type CreateTaskInput struct {
	Title           string
	Description     string
	Location        *string
	EquipmentNumber string
	NotificationNum *string
	TypeOfWork      *model.TypeOfWork
	Priority        model.TaskPriority
	AssigneeID      *uuid.UUID
	DueDate         *time.Time
}

// taskIDRetries is how many times an insert is retried with a fresh task id
// when the unique index rejects the one the coordinator picked.
const taskIDRetries = 2

// AddTask validates input, claims a task id and inserts the task. The new
// row is visible in the cache immediately, flagged optimistic, and replaced
// by the stored row once the insert succeeds.
func (s *TaskStore) AddTask(ctx context.Context, principal model.Principal, input CreateTaskInput) (*model.Task, error) {
	task, err := s.prepareTask(ctx, principal, input)
	if err != nil {
		return nil, err
	}

	if task.NotificationNum != nil {
		if err := s.checkNotificationNum(ctx, *task.NotificationNum, nil); err != nil {
			return nil, err
		}
	}
	taskID, err := s.ids.NewTaskID(ctx)
	if err != nil {
		return nil, remoteError("allocate task id", err)
	}
	task.TaskID = taskID

	cmd := &command{upserts: []model.Task{task}}
	if task.NotificationNum != nil {
		cmd.reserve = []string{*task.NotificationNum}
	}

	rows, err := s.execute(ctx, cmd, s.cfg.Timeouts.Insert, "create task", func(ctx context.Context) ([]model.Task, error) {
		row, err := s.insertWithRetry(ctx, task)
		if err != nil {
			return nil, err
		}
		return []model.Task{row}, nil
	})
	if err != nil {
		return nil, err
	}

	created := rows[0]
	s.log.Info().
		Str("task_id", created.TaskID).
		Str("creator_id", principal.UserID.String()).
		Str("status", string(created.Status)).
		Msg("task created")
	s.record(ctx, model.AuditActionCreated, principal.UserID, nil, &created)
	return &created, nil
}

// AddTasksBulk inserts every task or none. Notification numbers must be
// unique within the batch and against stored tasks.
func (s *TaskStore) AddTasksBulk(ctx context.Context, principal model.Principal, inputs []CreateTaskInput) ([]model.Task, error) {
	if len(inputs) == 0 {
		return nil, invalid("no tasks to create")
	}

	tasks := make([]model.Task, 0, len(inputs))
	var nums []string
	seen := make(map[string]int, len(inputs))
	for i, input := range inputs {
		task, err := s.prepareTask(ctx, principal, input)
		if err != nil {
			return nil, rowError(i, err)
		}
		if task.NotificationNum != nil {
			num := *task.NotificationNum
			if first, dup := seen[num]; dup {
				return nil, invalid(fmt.Sprintf("rows %d and %d share notification number %s", first+1, i+1, num))
			}
			seen[num] = i
			nums = append(nums, num)
		}
		tasks = append(tasks, task)
	}

	if len(nums) > 0 {
		checkCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Check)
		existing, err := s.tasks.ExistingNotificationNums(checkCtx, nums)
		cancel()
		if err != nil {
			return nil, remoteError("check notification numbers", err)
		}
		if len(existing) > 0 {
			return nil, newError(ErrConflict, "notification numbers already in use: "+strings.Join(existing, ", "))
		}
	}

	used := make(map[string]struct{}, len(tasks))
	for i := range tasks {
		for {
			taskID, err := s.ids.NewTaskID(ctx)
			if err != nil {
				return nil, remoteError("allocate task id", err)
			}
			if _, dup := used[taskID]; dup {
				continue
			}
			used[taskID] = struct{}{}
			tasks[i].TaskID = taskID
			break
		}
	}

	// The first input ends up at the front of the collection.
	cmd := &command{upserts: tasks, reserve: nums}
	rows, err := s.execute(ctx, cmd, s.cfg.Timeouts.Insert, "create tasks", func(ctx context.Context) ([]model.Task, error) {
		batch := make([]*model.Task, len(tasks))
		for i := range tasks {
			row := persistable(tasks[i])
			batch[i] = &row
		}
		if err := s.tasks.CreateBatch(ctx, batch); err != nil {
			return nil, err
		}
		out := make([]model.Task, len(batch))
		for i, row := range batch {
			out[i] = *row
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("count", len(rows)).Str("creator_id", principal.UserID.String()).Msg("tasks created in bulk")
	for i := range rows {
		s.record(ctx, model.AuditActionCreated, principal.UserID, nil, &rows[i])
	}
	return rows, nil
}

func (s *TaskStore) prepareTask(ctx context.Context, principal model.Principal, input CreateTaskInput) (model.Task, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return model.Task{}, err
	}
	equipment, err := normalizeEquipment(input.EquipmentNumber)
	if err != nil {
		return model.Task{}, err
	}
	location, err := normalizeLocation(input.Location)
	if err != nil {
		return model.Task{}, err
	}
	num, err := normalizeNotificationNum(input.NotificationNum)
	if err != nil {
		return model.Task{}, err
	}
	if err := validateTypeOfWork(input.TypeOfWork); err != nil {
		return model.Task{}, err
	}
	priority, err := normalizePriority(input.Priority)
	if err != nil {
		return model.Task{}, err
	}
	now := s.now()
	due, err := normalizeDueDate(input.DueDate, now)
	if err != nil {
		return model.Task{}, err
	}

	var assignee *model.Profile
	if input.AssigneeID != nil && *input.AssigneeID != uuid.Nil {
		assignee, err = s.loadProfile(ctx, *input.AssigneeID)
		if err != nil {
			return model.Task{}, err
		}
	}
	if d := policy.CanCreateTask(principal, assignee); !d.Allowed {
		return model.Task{}, denied(d)
	}

	task := model.Task{
		ID:              uuid.New(),
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Location:        location,
		EquipmentNumber: equipment,
		NotificationNum: num,
		TypeOfWork:      input.TypeOfWork,
		Priority:        priority,
		Status:          model.TaskStatusUnassigned,
		PhotoBeforeURLs: pq.StringArray{},
		PhotoAfterURLs:  pq.StringArray{},
		CreatorID:       principal.UserID,
		DueDate:         due,
		CreatedAt:       now,
		UpdatedAt:       now,
		Optimistic:      true,
	}
	if assignee != nil {
		assigneeID := assignee.ID
		assignedBy := principal.UserID
		task.AssigneeID = &assigneeID
		task.AssignedByID = &assignedBy
		task.Status = model.TaskStatusAssigned
	}
	return task, nil
}

// insertWithRetry inserts task under a server-assigned id. A task_id
// collision caught by the unique index is retried with a new id.
func (s *TaskStore) insertWithRetry(ctx context.Context, task model.Task) (model.Task, error) {
	row := persistable(task)
	for attempt := 0; ; attempt++ {
		err := s.tasks.Create(ctx, &row)
		if err == nil {
			return row, nil
		}
		constraint, dup := repository.DuplicateConstraint(err)
		if !dup || constraint != repository.ConstraintTaskID || attempt >= taskIDRetries {
			return model.Task{}, err
		}
		taskID, idErr := s.ids.NewTaskID(ctx)
		if idErr != nil {
			return model.Task{}, errors.Join(err, idErr)
		}
		s.log.Debug().Str("task_id", row.TaskID).Msg("task id collided on insert, retrying")
		row = persistable(task)
		row.TaskID = taskID
	}
}

// persistable strips the local identity so the database assigns one.
func persistable(task model.Task) model.Task {
	row := task.Clone()
	row.ID = uuid.Nil
	row.Optimistic = false
	row.CreatedAt = time.Time{}
	row.UpdatedAt = time.Time{}
	return row
}

func rowError(i int, err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return &Error{Kind: svcErr.Kind, Message: fmt.Sprintf("row %d: %s", i+1, svcErr.Message), Cause: svcErr.Cause}
	}
	return err
}
