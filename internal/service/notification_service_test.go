package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-market/internal/model"
	"task-market/internal/repository"
)

type fakeSink struct {
	mu        sync.Mutex
	err       error
	delay     time.Duration
	delivered []model.Notification
}

func (s *fakeSink) Deliver(_ context.Context, n model.Notification) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func (s *fakeSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func newNotificationService(t *testing.T, queueSize, maxAttempts int) (*NotificationService, *repository.NotificationRepository) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewNotificationRepository(db)
	return NewNotificationService(repo, queueSize, maxAttempts, time.Minute), repo
}

func TestNotificationService_RunDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, repo := newNotificationService(t, 8, 3)
	sink := &fakeSink{}
	svc.AddSink(sink)

	go svc.Run(ctx)

	target := uint(7)
	svc.Publish(ctx, Event{Kind: model.EventTaskAccepted, Message: "bob accepted the task", TaskID: 1, Target: &target})

	assert.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		pending, err := repo.ListUndelivered(ctx, 3, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	inbox, err := svc.ListForUser(ctx, target)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.EventTaskAccepted, inbox[0].Kind)
	assert.NotEmpty(t, inbox[0].EventID)
	assert.False(t, inbox[0].Read)
}

func TestNotificationService_RedeliverAfterFailure(t *testing.T) {
	ctx := context.Background()
	svc, repo := newNotificationService(t, 1, 2)
	sink := &fakeSink{err: errors.New("telegram is down")}
	svc.AddSink(sink)

	svc.Publish(ctx, Event{Kind: model.EventTaskAdded, Message: "New task added: Essay", TaskID: 1})

	require.NoError(t, svc.RedeliverPending(ctx))
	pending, err := repo.ListUndelivered(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "telegram is down", pending[0].LastError)

	sink.setErr(nil)
	require.NoError(t, svc.RedeliverPending(ctx))
	assert.Equal(t, 1, sink.count())

	pending, err = repo.ListUndelivered(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNotificationService_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	svc, repo := newNotificationService(t, 1, 2)
	sink := &fakeSink{err: errors.New("blocked by user")}
	svc.AddSink(sink)

	svc.Publish(ctx, Event{Kind: model.EventTaskAdded, Message: "New task added: Essay", TaskID: 1})
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RedeliverPending(ctx))
	}

	pending, err := repo.ListUndelivered(ctx, 100, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
}

func TestNotificationService_FullQueueKeepsRow(t *testing.T) {
	ctx := context.Background()
	svc, repo := newNotificationService(t, 1, 3)

	for i := 0; i < 3; i++ {
		svc.Publish(ctx, Event{Kind: model.EventTaskAdded, Message: "New task added", TaskID: uint(i + 1)})
	}

	pending, err := repo.ListUndelivered(ctx, 3, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3, "every event is stored even when the queue overflows")
}

func TestNotificationService_Inbox(t *testing.T) {
	ctx := context.Background()
	svc, _ := newNotificationService(t, 4, 3)
	alice := uint(1)
	bob := uint(2)

	svc.Publish(ctx, Event{Kind: model.EventTaskDoneRequested, Message: "please confirm", TaskID: 3, Target: &alice})
	svc.Publish(ctx, Event{Kind: model.EventTaskDoneConfirmed, Message: "done", TaskID: 4, Target: &bob})

	inbox, err := svc.ListForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	require.NoError(t, svc.MarkAllRead(ctx, alice))
	inbox, err = svc.ListForUser(ctx, alice)
	require.NoError(t, err)
	assert.True(t, inbox[0].Read)

	assert.ErrorIs(t, svc.Clear(ctx, bob, inbox[0].ID), ErrNotFound)
	require.NoError(t, svc.Clear(ctx, alice, inbox[0].ID))

	inbox, err = svc.ListForUser(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestNotificationService_SlowSinkDeliversOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, repo := newNotificationService(t, 8, 3)
	sink := &fakeSink{delay: 200 * time.Millisecond}
	svc.AddSink(sink)

	go svc.Run(ctx)

	svc.Publish(ctx, Event{Kind: model.EventTaskAdded, Message: "New task added: Essay", TaskID: 1})
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.RedeliverPending(ctx))
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		pending, err := repo.ListUndelivered(ctx, 3, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestNotificationService_ExpiredClaimIsRetried(t *testing.T) {
	ctx := context.Background()
	svc, repo := newNotificationService(t, 1, 3)
	sink := &fakeSink{}
	svc.AddSink(sink)

	svc.Publish(ctx, Event{Kind: model.EventTaskAdded, Message: "New task added: Essay", TaskID: 1})
	pending, err := repo.ListUndelivered(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// A dispatcher that died mid-delivery leaves its lease behind.
	started := time.Now()
	claimed, err := repo.Claim(ctx, pending[0].ID, started, started.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, svc.RedeliverPending(ctx))
	assert.Equal(t, 0, sink.count(), "a live lease blocks redelivery")

	svc.now = func() time.Time { return started.Add(2 * time.Minute) }
	require.NoError(t, svc.RedeliverPending(ctx))
	assert.Equal(t, 1, sink.count())
}

func TestNotificationService_Receipts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newNotificationService(t, 1, 3)

	seen, err := svc.Delivered(ctx, "ev-1", 7)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, svc.RecordDelivery(ctx, "ev-1", 7))
	require.NoError(t, svc.RecordDelivery(ctx, "ev-1", 7))

	seen, err = svc.Delivered(ctx, "ev-1", 7)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = svc.Delivered(ctx, "ev-1", 8)
	require.NoError(t, err)
	assert.False(t, seen)
}
