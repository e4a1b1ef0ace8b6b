package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"task-market/internal/model"
	"task-market/internal/repository"
)

// UserInput is the payload for registering an account.
type UserInput struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// UserDirectory resolves user identifiers and tracks account status.
type UserDirectory struct {
	repo *repository.UserRepository
}

func NewUserDirectory(repo *repository.UserRepository) *UserDirectory {
	return &UserDirectory{repo: repo}
}

func (d *UserDirectory) Resolve(ctx context.Context, id uint) (*model.User, error) {
	user, err := d.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user not found")
	}
	return user, err
}

func (d *UserDirectory) Register(ctx context.Context, input UserInput) (*model.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	user := &model.User{Username: input.Username, Email: input.Email, Status: model.UserActive}
	if err := d.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict(fmt.Sprintf("username %q is already taken", input.Username))
		}
		return nil, err
	}
	return user, nil
}

// LinkTelegram returns the account bound to telegramID, creating or linking one when needed.
func (d *UserDirectory) LinkTelegram(ctx context.Context, telegramID int64, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = fmt.Sprintf("tg%d", telegramID)
	}
	return d.repo.UpsertFromTelegram(ctx, telegramID, username)
}

func (d *UserDirectory) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := d.repo.FindByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user not found")
	}
	return user, err
}

func (d *UserDirectory) SetStatus(ctx context.Context, id uint, status model.UserStatus) error {
	if status != model.UserActive && status != model.UserInactive {
		return invalid(fmt.Sprintf("unknown user status %q", status))
	}
	err := d.repo.SetStatus(ctx, id, status)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("user not found")
	}
	return err
}

func (d *UserDirectory) List(ctx context.Context) ([]model.User, error) {
	return d.repo.ListAll(ctx)
}

// ListLinked returns active users reachable over Telegram.
func (d *UserDirectory) ListLinked(ctx context.Context) ([]model.User, error) {
	return d.repo.ListLinked(ctx)
}
