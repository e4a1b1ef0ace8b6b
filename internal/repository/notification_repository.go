package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-market/internal/model"
)

// NotificationRepository stores lifecycle events: it is the delivery outbox
// and the per-user inbox at the same time.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// Claim takes the delivery lease on an undelivered row. A lease older than
// staleBefore is considered abandoned and can be taken over. It reports
// false when another dispatcher holds the row or it is already delivered.
func (r *NotificationRepository) Claim(ctx context.Context, id uint, now, staleBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND delivered = ? AND (claimed_at IS NULL OR claimed_at < ?)", id, false, staleBefore).
		Update("claimed_at", now)
	if err := result.Error; err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	return result.RowsAffected == 1, nil
}

func (r *NotificationRepository) MarkDelivered(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{"delivered": true, "last_error": "", "claimed_at": nil}).Error; err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id uint, cause string) error {
	if err := r.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause,
			"claimed_at": nil,
		}).Error; err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ListUndelivered returns the oldest rows still waiting for a sink.
func (r *NotificationRepository) ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]model.Notification, error) {
	var items []model.Notification
	if err := r.db.WithContext(ctx).
		Where("delivered = ? AND attempts < ?", false, maxAttempts).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list undelivered: %w", err)
	}
	return items, nil
}

// ListForUser returns the user's own notifications followed by broadcasts, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID uint) ([]model.Notification, error) {
	var items []model.Notification
	if err := r.db.WithContext(ctx).
		Where("user_id = ? OR user_id IS NULL", userID).
		Order("id DESC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error; err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Delete removes a notification addressed to userID.
func (r *NotificationRepository) Delete(ctx context.Context, userID, id uint) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Notification{})
	if err := result.Error; err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasReceipt reports whether eventID already reached userID.
func (r *NotificationRepository) HasReceipt(ctx context.Context, eventID string, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Receipt{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("find receipt: %w", err)
	}
	return count > 0, nil
}

// AddReceipt records a delivery. Recording the same pair twice is not an error.
func (r *NotificationRepository) AddReceipt(ctx context.Context, eventID string, userID uint) error {
	err := r.db.WithContext(ctx).Create(&model.Receipt{EventID: eventID, UserID: userID}).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("add receipt: %w", err)
	}
	return nil
}
