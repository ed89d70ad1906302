package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"task-service/internal/model"
)

type Dashboard struct {
	Total          int                        `json:"total"`
	ByStatus       map[model.TaskStatus]int   `json:"by_status"`
	ByPriority     map[model.TaskPriority]int `json:"by_priority"`
	Overdue        int                        `json:"overdue"`
	OpenByAssignee map[uuid.UUID]int          `json:"open_by_assignee"`
	MyOpen         int                        `json:"my_open"`
	MyOverdue      int                        `json:"my_overdue"`
	GeneratedAt    time.Time                  `json:"generated_at"`
}

type taskLister interface {
	List(ctx context.Context, principal model.Principal) ([]model.Task, error)
}

// DashboardService aggregates over the cached collection; it never queries
// the database on its own.
type DashboardService struct {
	tasks taskLister
	now   func() time.Time
}

func NewDashboardService(tasks taskLister) *DashboardService {
	return &DashboardService{tasks: tasks, now: time.Now}
}

func (s *DashboardService) Summary(ctx context.Context, principal model.Principal) (*Dashboard, error) {
	tasks, err := s.tasks.List(ctx, principal)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return summarize(tasks, principal.UserID, now), nil
}

func summarize(tasks []model.Task, userID uuid.UUID, now time.Time) *Dashboard {
	d := &Dashboard{
		Total:          len(tasks),
		ByStatus:       make(map[model.TaskStatus]int),
		ByPriority:     make(map[model.TaskPriority]int),
		OpenByAssignee: make(map[uuid.UUID]int),
		GeneratedAt:    now,
	}
	for i := range tasks {
		task := &tasks[i]
		d.ByStatus[task.Status]++
		d.ByPriority[task.Priority]++

		open := task.Status != model.TaskStatusCompleted && task.Status != model.TaskStatusCancelled
		overdue := task.IsOverdue(now)
		if overdue {
			d.Overdue++
		}
		if open && task.HasAssignee() {
			d.OpenByAssignee[*task.AssigneeID]++
		}
		if task.IsAssignee(userID) {
			if open {
				d.MyOpen++
			}
			if overdue {
				d.MyOverdue++
			}
		}
	}
	return d
}
