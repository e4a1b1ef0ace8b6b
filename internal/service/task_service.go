package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"task-market/internal/model"
	"task-market/internal/repository"
)

// TaskInput represents the descriptive payload of a task.
type TaskInput struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Category    string `json:"category" validate:"required,max=64"`
}

func (in TaskInput) normalized() TaskInput {
	return TaskInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    model.NormalizeCategory(in.Category),
	}
}

// Event is a lifecycle notification. A nil Target means broadcast.
type Event struct {
	Kind    model.EventKind
	Message string
	TaskID  uint
	Target  *uint
}

// Publisher accepts events without blocking the caller. Delivery problems
// stay inside the publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type userResolver interface {
	Resolve(ctx context.Context, id uint) (*model.User, error)
}

// TaskLifecycle enforces the task state machine, the one-ongoing-task rule
// and the two-party completion handshake.
type TaskLifecycle struct {
	tasks   *repository.TaskRepository
	users   userResolver
	events  Publisher
	locks   *keyLocker
	retries int
}

func NewTaskLifecycle(tasks *repository.TaskRepository, users userResolver, events Publisher, retries int) *TaskLifecycle {
	if retries < 0 {
		retries = 0
	}
	return &TaskLifecycle{
		tasks:   tasks,
		users:   users,
		events:  events,
		locks:   newKeyLocker(),
		retries: retries,
	}
}

// Create posts a new Open task for ownerID.
func (l *TaskLifecycle) Create(ctx context.Context, ownerID uint, input TaskInput) (*model.Task, error) {
	input = input.normalized()
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if _, err := l.activeUser(ctx, ownerID); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(userKey(ownerID))

	task := &model.Task{
		OwnerID:      ownerID,
		Status:       model.StatusOpen,
		ActiveStatus: model.Active,
		Category:     input.Category,
		Title:        input.Title,
		Description:  input.Description,
	}
	err := l.tasks.Transaction(ctx, func(tx *repository.TaskRepository) error {
		if err := ensureNoOngoing(ctx, tx, ownerID, "you must complete and verify your current task before creating a new one"); err != nil {
			return err
		}
		return tx.Create(ctx, task)
	})
	unlock()
	if err != nil {
		return nil, err
	}

	log.Printf("[lifecycle] task %d created by user %d", task.ID, ownerID)
	l.events.Publish(ctx, Event{
		Kind:    model.EventTaskAdded,
		Message: fmt.Sprintf("New task added: %s", task.Title),
		TaskID:  task.ID,
	})
	return task, nil
}

// Accept assigns an Open task to userID and moves it to In Progress.
func (l *TaskLifecycle) Accept(ctx context.Context, taskID, userID uint) (*model.Task, error) {
	user, err := l.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return l.mutate(ctx, taskID, []uint{userID}, func(tx *repository.TaskRepository, task *model.Task) (*Event, error) {
		if task.OwnerID == userID {
			return nil, forbidden("you cannot accept your own task")
		}
		next, err := nextStatus(task.Status, opAccept)
		if err != nil {
			return nil, err
		}
		if err := ensureNoOngoing(ctx, tx, userID, "you must complete and verify your current task before accepting a new one"); err != nil {
			return nil, err
		}
		if err := ensureNoOngoing(ctx, tx, task.OwnerID, "the task owner is busy with another task"); err != nil {
			return nil, err
		}

		task.AssigneeID = &userID
		task.Status = next
		owner := task.OwnerID
		return &Event{
			Kind:    model.EventTaskAccepted,
			Message: fmt.Sprintf("%s accepted the task %q", user.Username, task.Title),
			TaskID:  task.ID,
			Target:  &owner,
		}, nil
	})
}

// RequestMarkDone is the handshake entry point for either party. The first
// call moves the task to Pending Verification, a call by the other party
// finishes it.
func (l *TaskLifecycle) RequestMarkDone(ctx context.Context, taskID, userID uint) (*model.Task, error) {
	user, err := l.users.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	return l.mutate(ctx, taskID, nil, func(_ *repository.TaskRepository, task *model.Task) (*Event, error) {
		if !task.IsParty(userID) {
			return nil, forbidden("you are not authorized to mark this task")
		}
		role := roleOf(task, userID)
		next, err := nextStatus(task.Status, opRequestDone)
		if err != nil {
			return nil, err
		}

		if task.Status == model.StatusPendingVerification {
			if requestedBy(task, userID) {
				return nil, invalidState("waiting for verification from the other user")
			}
			return finish(task, next, user, role), nil
		}

		task.Status = next
		task.MarkedDoneBy = &userID
		return &Event{
			Kind:    model.EventTaskDoneRequested,
			Message: fmt.Sprintf("%s requested to mark the task %q as done", user.Username, task.Title),
			TaskID:  task.ID,
			Target:  counterpart(task, role),
		}, nil
	})
}

// ConfirmDone is the explicit second confirmation of a pending task.
func (l *TaskLifecycle) ConfirmDone(ctx context.Context, taskID, userID uint) (*model.Task, error) {
	user, err := l.users.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	return l.mutate(ctx, taskID, nil, func(_ *repository.TaskRepository, task *model.Task) (*Event, error) {
		if !task.IsParty(userID) {
			return nil, forbidden("you are not authorized to confirm this task")
		}
		role := roleOf(task, userID)
		next, err := nextStatus(task.Status, opConfirmDone)
		if err != nil {
			return nil, err
		}
		if requestedBy(task, userID) {
			return nil, invalidState("you cannot confirm your own request")
		}
		return finish(task, next, user, role), nil
	})
}

// Update overwrites the descriptive payload. Only the owner may do it and
// the status is never touched.
func (l *TaskLifecycle) Update(ctx context.Context, taskID, userID uint, input TaskInput) (*model.Task, error) {
	input = input.normalized()
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	return l.mutate(ctx, taskID, nil, func(_ *repository.TaskRepository, task *model.Task) (*Event, error) {
		if roleOf(task, userID) != RoleOwner {
			return nil, forbidden("you can only update your own tasks")
		}
		if task.Status == model.StatusDone {
			return nil, invalidState("task is already marked as done")
		}
		task.Title = input.Title
		task.Description = input.Description
		task.Category = input.Category
		return nil, nil
	})
}

// Delete removes a task. Only the owner may do it.
func (l *TaskLifecycle) Delete(ctx context.Context, taskID, userID uint) error {
	unlock := l.locks.Lock(taskKey(taskID))
	defer unlock()

	task, err := l.tasks.FindByID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("task not found")
	}
	if err != nil {
		return err
	}
	if roleOf(task, userID) != RoleOwner {
		return forbidden("you can only delete your own tasks")
	}
	if err := l.tasks.Delete(ctx, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("task not found")
		}
		return err
	}
	log.Printf("[lifecycle] task %d deleted by user %d", taskID, userID)
	return nil
}

// Deactivate hides a task regardless of its status. It returns false when
// the task does not exist.
func (l *TaskLifecycle) Deactivate(ctx context.Context, taskID uint) (bool, error) {
	return l.setActive(ctx, taskID, nil, model.Inactive)
}

// Activate makes a hidden task visible again.
func (l *TaskLifecycle) Activate(ctx context.Context, taskID uint) (bool, error) {
	return l.setActive(ctx, taskID, nil, model.Active)
}

// DeactivateAs is Deactivate restricted to the task owner.
func (l *TaskLifecycle) DeactivateAs(ctx context.Context, taskID, userID uint) (bool, error) {
	return l.setActive(ctx, taskID, &userID, model.Inactive)
}

// ActivateAs is Activate restricted to the task owner.
func (l *TaskLifecycle) ActivateAs(ctx context.Context, taskID, userID uint) (bool, error) {
	return l.setActive(ctx, taskID, &userID, model.Active)
}

func (l *TaskLifecycle) setActive(ctx context.Context, taskID uint, callerID *uint, flag model.ActiveStatus) (bool, error) {
	_, err := l.mutate(ctx, taskID, nil, func(_ *repository.TaskRepository, task *model.Task) (*Event, error) {
		if callerID != nil && task.OwnerID != *callerID {
			return nil, forbidden("only the task owner can change its visibility")
		}
		task.ActiveStatus = flag
		return nil, nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *TaskLifecycle) Get(ctx context.Context, taskID uint) (*model.Task, error) {
	task, err := l.tasks.FindByID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("task not found")
	}
	return task, err
}

func (l *TaskLifecycle) ListAll(ctx context.Context) ([]model.Task, error) {
	return l.tasks.ListAll(ctx)
}

func (l *TaskLifecycle) ListByStatus(ctx context.Context, status model.TaskStatus) ([]model.Task, error) {
	if !status.Valid() {
		return nil, invalid(fmt.Sprintf("unknown task status %q", status))
	}
	return l.tasks.ListByStatus(ctx, status)
}

func (l *TaskLifecycle) ListByActive(ctx context.Context, flag model.ActiveStatus) ([]model.Task, error) {
	if !flag.Valid() {
		return nil, invalid(fmt.Sprintf("unknown active status %q", flag))
	}
	return l.tasks.ListByActive(ctx, flag)
}

func (l *TaskLifecycle) ListOwnedBy(ctx context.Context, userID uint) ([]model.Task, error) {
	return l.tasks.ListByOwner(ctx, userID)
}

func (l *TaskLifecycle) ListAcceptedBy(ctx context.Context, userID uint) ([]model.Task, error) {
	return l.tasks.ListByAssignee(ctx, userID)
}

// ListPendingVerificationFor returns pending tasks waiting on userID's confirmation.
func (l *TaskLifecycle) ListPendingVerificationFor(ctx context.Context, userID uint) ([]model.Task, error) {
	return l.tasks.ListAwaitingConfirmation(ctx, userID)
}

// ListHistory returns finished tasks where userID was owner or assignee.
func (l *TaskLifecycle) ListHistory(ctx context.Context, userID uint) ([]model.Task, error) {
	return l.tasks.ListByParty(ctx, userID, model.StatusDone)
}

// mutate loads the task, locks it together with its parties and extraUsers,
// and applies fn inside a transaction. The write is a version
// compare-and-swap; a lost race is retried from a fresh read.
func (l *TaskLifecycle) mutate(
	ctx context.Context,
	taskID uint,
	extraUsers []uint,
	fn func(tx *repository.TaskRepository, task *model.Task) (*Event, error),
) (*model.Task, error) {
	for attempt := 0; ; attempt++ {
		snapshot, err := l.tasks.FindByID(ctx, taskID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("task not found")
		}
		if err != nil {
			return nil, err
		}

		keys := []string{taskKey(taskID), userKey(snapshot.OwnerID)}
		if snapshot.AssigneeID != nil {
			keys = append(keys, userKey(*snapshot.AssigneeID))
		}
		for _, id := range extraUsers {
			keys = append(keys, userKey(id))
		}

		var (
			result *model.Task
			event  *Event
		)
		unlock := l.locks.Lock(keys...)
		err = l.tasks.Transaction(ctx, func(tx *repository.TaskRepository) error {
			task, err := tx.FindByID(ctx, taskID)
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("task not found")
			}
			if err != nil {
				return err
			}
			if task.Version != snapshot.Version {
				return repository.ErrStaleTask
			}
			ev, err := fn(tx, task)
			if err != nil {
				return err
			}
			if err := tx.Save(ctx, task); err != nil {
				return err
			}
			result, event = task, ev
			return nil
		})
		unlock()

		if errors.Is(err, repository.ErrStaleTask) {
			if attempt < l.retries {
				continue
			}
			return nil, conflict("task was modified concurrently, try again")
		}
		if err != nil {
			return nil, err
		}

		log.Printf("[lifecycle] task %d now %s/%s", result.ID, result.Status, result.ActiveStatus)
		if event != nil {
			l.events.Publish(ctx, *event)
		}
		return result, nil
	}
}

func (l *TaskLifecycle) activeUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := l.users.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, forbidden("your account is inactive")
	}
	return user, nil
}

func ensureNoOngoing(ctx context.Context, tx *repository.TaskRepository, userID uint, reason string) error {
	busy, err := tx.ExistsByParty(ctx, userID, model.OngoingStatuses...)
	if err != nil {
		return err
	}
	if busy {
		return conflict(reason)
	}
	return nil
}

func requestedBy(task *model.Task, userID uint) bool {
	return task.MarkedDoneBy != nil && *task.MarkedDoneBy == userID
}

// finish applies the second confirmation. markedDoneBy is only meaningful
// while the task waits for verification, so it is cleared here.
func finish(task *model.Task, next model.TaskStatus, user *model.User, role Role) *Event {
	task.Status = next
	task.MarkedDoneBy = nil
	return &Event{
		Kind:    model.EventTaskDoneConfirmed,
		Message: fmt.Sprintf("%s confirmed the task %q as done", user.Username, task.Title),
		TaskID:  task.ID,
		Target:  counterpart(task, role),
	}
}
