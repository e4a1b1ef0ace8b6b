package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-market/internal/model"
)

// TaskRepository is the durable task store.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Transaction runs fn against a repository bound to a single transaction.
// fn must not touch other repositories: the pool holds one connection.
func (r *TaskRepository) Transaction(ctx context.Context, fn func(tx *TaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if task.Version == 0 {
		task.Version = 1
	}
	if task.ActiveStatus == "" {
		task.ActiveStatus = model.Active
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// Save writes every mutable column if the stored version still matches
// task.Version, then advances the version.
func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND version = ?", task.ID, task.Version).
		Updates(map[string]interface{}{
			"assignee_id":    task.AssigneeID,
			"status":         task.Status,
			"marked_done_by": task.MarkedDoneBy,
			"active_status":  task.ActiveStatus,
			"category":       task.Category,
			"title":          task.Title,
			"description":    task.Description,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     now,
		})
	if err := result.Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrStaleTask
	}
	task.Version++
	task.UpdatedAt = now
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	result := r.db.WithContext(ctx).Delete(&model.Task{}, taskID)
	if err := result.Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsByParty reports whether userID owns or is assigned to a task in one of statuses.
func (r *TaskRepository) ExistsByParty(ctx context.Context, userID uint, statuses ...model.TaskStatus) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("(owner_id = ? OR assignee_id = ?) AND status IN ?", userID, userID, statuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check ongoing tasks: %w", err)
	}
	return count > 0, nil
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status model.TaskStatus) ([]model.Task, error) {
	return r.list(ctx, r.db.Where("status = ?", status))
}

func (r *TaskRepository) ListByActive(ctx context.Context, active model.ActiveStatus) ([]model.Task, error) {
	return r.list(ctx, r.db.Where("active_status = ?", active))
}

func (r *TaskRepository) ListAll(ctx context.Context) ([]model.Task, error) {
	return r.list(ctx, r.db)
}

func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Task, error) {
	return r.list(ctx, r.db.Where("owner_id = ?", ownerID))
}

func (r *TaskRepository) ListByAssignee(ctx context.Context, assigneeID uint) ([]model.Task, error) {
	return r.list(ctx, r.db.Where("assignee_id = ?", assigneeID))
}

// ListByParty returns tasks in status where userID is owner or assignee.
func (r *TaskRepository) ListByParty(ctx context.Context, userID uint, status model.TaskStatus) ([]model.Task, error) {
	return r.list(ctx, r.db.Where("(owner_id = ? OR assignee_id = ?) AND status = ?", userID, userID, status))
}

// ListAwaitingConfirmation returns pending tasks where userID is a party
// but not the one who asked for completion.
func (r *TaskRepository) ListAwaitingConfirmation(ctx context.Context, userID uint) ([]model.Task, error) {
	return r.list(ctx, r.db.Where(
		"(owner_id = ? OR assignee_id = ?) AND status = ? AND marked_done_by <> ?",
		userID, userID, model.StatusPendingVerification, userID,
	))
}

func (r *TaskRepository) CountByStatus(ctx context.Context, status model.TaskStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

func (r *TaskRepository) list(ctx context.Context, query *gorm.DB) ([]model.Task, error) {
	var tasks []model.Task
	if err := query.WithContext(ctx).Order("updated_at DESC, id DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}
