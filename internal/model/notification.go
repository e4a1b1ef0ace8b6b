package model

import "time"

// EventKind names a lifecycle event delivered to users.
type EventKind string

const (
	EventTaskAdded         EventKind = "TASK_ADDED"
	EventTaskAccepted      EventKind = "TASK_ACCEPTED"
	EventTaskDoneRequested EventKind = "TASK_DONE_REQUESTED"
	EventTaskDoneConfirmed EventKind = "TASK_DONE_CONFIRMED"
)

// Notification is both the outbox row and the user's inbox entry.
// A nil UserID means the event is a broadcast.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	EventID   string     `gorm:"size:36;uniqueIndex;not null" json:"event_id"`
	Kind      EventKind  `gorm:"size:32;not null" json:"type"`
	Message   string     `json:"message"`
	UserID    *uint      `gorm:"index" json:"user_id,omitempty"`
	TaskID    uint       `gorm:"index" json:"task_id"`
	Read      bool       `gorm:"not null;default:false" json:"read"`
	Delivered bool       `gorm:"index;not null;default:false" json:"-"`
	Attempts  int        `gorm:"not null;default:0" json:"-"`
	LastError string     `json:"-"`
	ClaimedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"timestamp"`
}

// Receipt records that one recipient got one event, so a broadcast retried
// after a partial failure skips the users it already reached.
type Receipt struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"size:36;not null;uniqueIndex:idx_receipt_event_user"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_receipt_event_user"`
	CreatedAt time.Time
}

func (n *Notification) Broadcast() bool {
	return n.UserID == nil
}
