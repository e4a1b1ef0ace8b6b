package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"task-market/internal/model"
	"task-market/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) kinds() []model.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]model.EventKind, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (p *recordingPublisher) last() Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	tasks     *repository.TaskRepository
	users     *UserDirectory
	events    *recordingPublisher
	lifecycle *TaskLifecycle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	tasks := repository.NewTaskRepository(db)
	users := NewUserDirectory(repository.NewUserRepository(db))
	events := &recordingPublisher{}
	return &fixture{
		tasks:     tasks,
		users:     users,
		events:    events,
		lifecycle: NewTaskLifecycle(tasks, users, events, 3),
	}
}

func (f *fixture) user(t *testing.T, username string) *model.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), UserInput{Username: username})
	require.NoError(t, err)
	return user
}

func (f *fixture) openTask(t *testing.T, owner *model.User, title string) *model.Task {
	t.Helper()
	task, err := f.lifecycle.Create(context.Background(), owner.ID, TaskInput{Title: title, Category: "Tutoring"})
	require.NoError(t, err)
	return task
}

// inProgress creates a task owned by owner and accepted by assignee.
func (f *fixture) inProgress(t *testing.T, owner, assignee *model.User, title string) *model.Task {
	t.Helper()
	task := f.openTask(t, owner, title)
	task, err := f.lifecycle.Accept(context.Background(), task.ID, assignee.ID)
	require.NoError(t, err)
	return task
}
