package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"task-market/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if user.Status == "" {
		user.Status = model.UserActive
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// UpsertFromTelegram finds or creates a user based on TelegramID. An existing
// account with the same username is linked instead of duplicated.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, username string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}

	err = db.Where("username = ? AND telegram_id IS NULL", username).First(&user).Error
	switch {
	case err == nil:
		if err := db.Model(&user).Update("telegram_id", telegramID).Error; err != nil {
			return nil, fmt.Errorf("link user: %w", err)
		}
		user.TelegramID = &telegramID
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			Username:   username,
			TelegramID: &telegramID,
			Status:     model.UserActive,
		}
		err := db.Create(&user).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// username belongs to another Telegram account
			user.ID = 0
			user.Username = fmt.Sprintf("%s_%d", username, telegramID)
			err = db.Create(&user).Error
		}
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) SetStatus(ctx context.Context, id uint, status model.UserStatus) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("status", status)
	if err := result.Error; err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListLinked returns users reachable over Telegram.
func (r *UserRepository) ListLinked(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("telegram_id IS NOT NULL AND status = ?", model.UserActive).
		Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
