package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"task-service/internal/model"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return translate(r.db.WithContext(ctx).Create(task).Error)
}

// CreateBatch inserts all tasks in one transaction; either every row lands or none.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []*model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&tasks).Error
	})
	return translate(err)
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &task, nil
}

// Update writes every mutable column of task. Identity and provenance
// columns are never rewritten.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	result := r.db.WithContext(ctx).
		Model(task).
		Select("*").
		Omit("id", "task_id", "creator_id", "created_at").
		Updates(task)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&model.Task{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TaskRepository) List(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) TaskIDExists(ctx context.Context, taskID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("task_id = ?", taskID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *TaskRepository) NotificationNumExists(ctx context.Context, num string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.Task{}).Where("notification_num = ?", num)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistingNotificationNums returns which of nums are already stored.
func (r *TaskRepository) ExistingNotificationNums(ctx context.Context, nums []string) ([]string, error) {
	if len(nums) == 0 {
		return nil, nil
	}
	var existing []string
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("notification_num IN ?", nums).
		Pluck("notification_num", &existing).Error
	return existing, err
}

// FindByPhotoURL returns the task that references url in any photo column.
func (r *TaskRepository) FindByPhotoURL(ctx context.Context, url string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("photo_permit_url = ? OR ? = ANY(photo_before_urls) OR ? = ANY(photo_after_urls)", url, url, url).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}
