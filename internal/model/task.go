package model

import "time"

// TaskStatus is the position of a task in the completion workflow.
type TaskStatus string

const (
	StatusOpen                TaskStatus = "Open"
	StatusInProgress          TaskStatus = "In Progress"
	StatusPendingVerification TaskStatus = "Pending Verification"
	StatusDone                TaskStatus = "Done"
)

// OngoingStatuses count toward the one-task-at-a-time limit of a user.
var OngoingStatuses = []TaskStatus{StatusInProgress, StatusPendingVerification}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusPendingVerification, StatusDone:
		return true
	}
	return false
}

func (s TaskStatus) Ongoing() bool {
	return s == StatusInProgress || s == StatusPendingVerification
}

// ActiveStatus controls visibility; it is independent from TaskStatus.
type ActiveStatus string

const (
	Active   ActiveStatus = "ACTIVE"
	Inactive ActiveStatus = "INACTIVE"
)

func (a ActiveStatus) Valid() bool {
	return a == Active || a == Inactive
}

// Task is a unit of work posted by one user and fulfilled by another.
type Task struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	OwnerID      uint         `gorm:"index;not null" json:"owner_id"`
	AssigneeID   *uint        `gorm:"index" json:"assignee_id,omitempty"`
	Status       TaskStatus   `gorm:"size:32;index;not null" json:"status"`
	MarkedDoneBy *uint        `json:"marked_done_by,omitempty"`
	ActiveStatus ActiveStatus `gorm:"size:16;index;not null;default:ACTIVE" json:"active_status"`
	Category     string       `gorm:"size:64;index;not null" json:"category"`
	Title        string       `gorm:"not null" json:"title"`
	Description  string       `json:"description"`
	Version      uint         `gorm:"not null;default:1" json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"timestamp"`
}

// IsParty reports whether userID is the owner or the assignee.
func (t *Task) IsParty(userID uint) bool {
	return t.OwnerID == userID || (t.AssigneeID != nil && *t.AssigneeID == userID)
}
