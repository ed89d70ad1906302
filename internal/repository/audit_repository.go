package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"task-service/internal/model"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, entry *model.TaskAudit) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]model.TaskAudit, error) {
	var entries []model.TaskAudit
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
