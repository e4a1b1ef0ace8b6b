package model

import "time"

// UserStatus marks whether an account may take part in the marketplace.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserInactive UserStatus = "INACTIVE"
)

// User is a marketplace account. TelegramID is set once the user talks to the bot.
type User struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Username   string     `gorm:"uniqueIndex;not null" json:"username"`
	Email      string     `json:"email,omitempty"`
	TelegramID *int64     `gorm:"uniqueIndex" json:"telegram_id,omitempty"`
	Status     UserStatus `gorm:"size:16;not null;default:ACTIVE" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u.Status != UserInactive
}
