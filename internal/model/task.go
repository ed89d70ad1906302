package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusUnassigned TaskStatus = "unassigned"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusUnassigned, TaskStatusAssigned, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	default:
		return false
	}
}

type TypeOfWork string

const (
	TypeOfWorkCorrective   TypeOfWork = "corrective"
	TypeOfWorkPreventive   TypeOfWork = "preventive"
	TypeOfWorkInspection   TypeOfWork = "inspection"
	TypeOfWorkInstallation TypeOfWork = "installation"
	TypeOfWorkEmergency    TypeOfWork = "emergency"
)

func (t TypeOfWork) Valid() bool {
	switch t {
	case TypeOfWorkCorrective, TypeOfWorkPreventive, TypeOfWorkInspection, TypeOfWorkInstallation, TypeOfWorkEmergency:
		return true
	default:
		return false
	}
}

type PhotoCategory string

const (
	PhotoCategoryBefore PhotoCategory = "before"
	PhotoCategoryAfter  PhotoCategory = "after"
	PhotoCategoryPermit PhotoCategory = "permit"
)

func (c PhotoCategory) Valid() bool {
	return c == PhotoCategoryBefore || c == PhotoCategoryAfter || c == PhotoCategoryPermit
}

type Task struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TaskID          string         `gorm:"type:varchar(15);not null;uniqueIndex" json:"task_id"`
	Title           string         `gorm:"type:text;not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	Location        *string        `gorm:"type:text" json:"location"`
	EquipmentNumber string         `gorm:"type:varchar(64);not null" json:"equipment_number"`
	NotificationNum *string        `gorm:"type:varchar(10);uniqueIndex" json:"notification_num"`
	TypeOfWork      *TypeOfWork    `gorm:"type:varchar(32)" json:"type_of_work"`
	Priority        TaskPriority   `gorm:"type:varchar(16);not null;default:medium" json:"priority"`
	Status          TaskStatus     `gorm:"type:varchar(16);not null;default:unassigned;index" json:"status"`
	AssigneeID      *uuid.UUID     `gorm:"type:uuid;index" json:"assignee_id"`
	AssignedByID    *uuid.UUID     `gorm:"type:uuid" json:"assigned_by_id"`
	ClosedByID      *uuid.UUID     `gorm:"type:uuid" json:"closed_by_id"`
	ClosedAt        *time.Time     `json:"closed_at"`
	PhotoBeforeURLs pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"photo_before_urls"`
	PhotoAfterURLs  pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"photo_after_urls"`
	PhotoPermitURL  *string        `gorm:"type:text" json:"photo_permit_url"`
	CreatorID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"creator_id"`
	DueDate         *time.Time     `gorm:"type:date" json:"due_date"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	// Optimistic marks a row that only exists in the local cache until the
	// remote write confirms it.
	Optimistic bool `gorm:"-" json:"_optimistic,omitempty"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Priority == "" {
		t.Priority = TaskPriorityMedium
	}
	if t.PhotoBeforeURLs == nil {
		t.PhotoBeforeURLs = pq.StringArray{}
	}
	if t.PhotoAfterURLs == nil {
		t.PhotoAfterURLs = pq.StringArray{}
	}
	return nil
}

// Clone returns a deep copy so cached rows never share slices or pointers
// with snapshots handed out to callers.
func (t Task) Clone() Task {
	c := t
	c.Location = cloneString(t.Location)
	c.NotificationNum = cloneString(t.NotificationNum)
	c.PhotoPermitURL = cloneString(t.PhotoPermitURL)
	c.AssigneeID = cloneUUID(t.AssigneeID)
	c.AssignedByID = cloneUUID(t.AssignedByID)
	c.ClosedByID = cloneUUID(t.ClosedByID)
	if t.TypeOfWork != nil {
		v := *t.TypeOfWork
		c.TypeOfWork = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		c.ClosedAt = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	if t.PhotoBeforeURLs != nil {
		c.PhotoBeforeURLs = append(pq.StringArray{}, t.PhotoBeforeURLs...)
	}
	if t.PhotoAfterURLs != nil {
		c.PhotoAfterURLs = append(pq.StringArray{}, t.PhotoAfterURLs...)
	}
	return c
}

func (t *Task) HasAssignee() bool {
	return t.AssigneeID != nil && *t.AssigneeID != uuid.Nil
}

func (t *Task) IsAssignee(userID uuid.UUID) bool {
	return t.HasAssignee() && *t.AssigneeID == userID
}

// MissingEvidence lists what still blocks the transition into completed.
func (t *Task) MissingEvidence() []string {
	var missing []string
	if t.NotificationNum == nil || *t.NotificationNum == "" {
		missing = append(missing, "notification_num")
	}
	if len(t.PhotoBeforeURLs) == 0 {
		missing = append(missing, "photo_before_urls")
	}
	if len(t.PhotoAfterURLs) == 0 {
		missing = append(missing, "photo_after_urls")
	}
	if t.PhotoPermitURL == nil || *t.PhotoPermitURL == "" {
		missing = append(missing, "photo_permit_url")
	}
	return missing
}

// PhotoURLs returns every blob url attached to the task.
func (t *Task) PhotoURLs() []string {
	urls := make([]string, 0, len(t.PhotoBeforeURLs)+len(t.PhotoAfterURLs)+1)
	urls = append(urls, t.PhotoBeforeURLs...)
	urls = append(urls, t.PhotoAfterURLs...)
	if t.PhotoPermitURL != nil && *t.PhotoPermitURL != "" {
		urls = append(urls, *t.PhotoPermitURL)
	}
	return urls
}

func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	if t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dy, dm, dd := t.DueDate.Date()
	due := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	return due.Before(today)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
