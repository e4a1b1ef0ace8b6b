package service

import "task-market/internal/model"

// Role is the caller's relationship to a task.
type Role int

const (
	RoleUnrelated Role = iota
	RoleOwner
	RoleAssignee
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAssignee:
		return "assignee"
	default:
		return "unrelated"
	}
}

func roleOf(task *model.Task, userID uint) Role {
	switch {
	case task.OwnerID == userID:
		return RoleOwner
	case task.AssigneeID != nil && *task.AssigneeID == userID:
		return RoleAssignee
	default:
		return RoleUnrelated
	}
}

// counterpart returns the other party of the task, or nil when there is none.
func counterpart(task *model.Task, role Role) *uint {
	switch role {
	case RoleOwner:
		return task.AssigneeID
	case RoleAssignee:
		owner := task.OwnerID
		return &owner
	default:
		return nil
	}
}

type operation string

const (
	opAccept      operation = "accept"
	opRequestDone operation = "request-done"
	opConfirmDone operation = "confirm-done"
)

// transitions lists every legal (state, operation) pair. Anything missing is rejected.
var transitions = map[model.TaskStatus]map[operation]model.TaskStatus{
	model.StatusOpen: {
		opAccept: model.StatusInProgress,
	},
	model.StatusInProgress: {
		opRequestDone: model.StatusPendingVerification,
	},
	model.StatusPendingVerification: {
		opRequestDone: model.StatusDone,
		opConfirmDone: model.StatusDone,
	},
	model.StatusDone: {},
}

// nextStatus resolves the target state, or the reason the move is illegal.
func nextStatus(from model.TaskStatus, op operation) (model.TaskStatus, error) {
	if to, ok := transitions[from][op]; ok {
		return to, nil
	}
	if from == model.StatusDone {
		return "", invalidState("task is already marked as done")
	}
	switch op {
	case opAccept:
		return "", invalidState("this task is no longer available for acceptance")
	case opRequestDone:
		return "", invalidState("task has not been accepted yet")
	default:
		return "", invalidState("task is not pending verification")
	}
}
