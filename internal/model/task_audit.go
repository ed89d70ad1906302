package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditAction string

const (
	AuditActionCreated       AuditAction = "created"
	AuditActionStatusChanged AuditAction = "status_changed"
	AuditActionAssigned      AuditAction = "assigned"
	AuditActionUpdated       AuditAction = "updated"
	AuditActionDeleted       AuditAction = "deleted"
	AuditActionRestored      AuditAction = "restored"
)

type TaskAudit struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TaskID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"task_id"`
	Action     AuditAction    `gorm:"type:varchar(32);not null" json:"action"`
	ActorID    uuid.UUID      `gorm:"type:uuid;not null" json:"actor_id"`
	FromStatus *TaskStatus    `gorm:"type:varchar(16)" json:"from_status"`
	ToStatus   *TaskStatus    `gorm:"type:varchar(16)" json:"to_status"`
	Changes    datatypes.JSON `gorm:"type:jsonb" json:"changes,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (TaskAudit) TableName() string {
	return "task_audits"
}

func (a *TaskAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
