package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"task-market/internal/model"
	"task-market/internal/repository"
)

// NotificationSink pushes a stored notification to an external channel.
type NotificationSink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// NotificationService is an outbox: events are persisted first and then
// handed to the sinks by a background loop. Undelivered rows are picked up
// again by RedeliverPending. A row is claimed before it reaches the sinks,
// so the loop and the redelivery job never hand out the same event twice.
type NotificationService struct {
	repo        *repository.NotificationRepository
	queue       chan model.Notification
	maxAttempts int
	lease       time.Duration
	now         func() time.Time

	mu    sync.RWMutex
	sinks []NotificationSink
}

func NewNotificationService(repo *repository.NotificationRepository, queueSize, maxAttempts int, lease time.Duration) *NotificationService {
	if queueSize <= 0 {
		queueSize = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &NotificationService{
		repo:        repo,
		queue:       make(chan model.Notification, queueSize),
		maxAttempts: maxAttempts,
		lease:       lease,
		now:         time.Now,
	}
}

func (s *NotificationService) AddSink(sink NotificationSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Publish stores the event and queues it for delivery. It never fails the caller.
func (s *NotificationService) Publish(ctx context.Context, event Event) {
	n := model.Notification{
		EventID: uuid.NewString(),
		Kind:    event.Kind,
		Message: event.Message,
		UserID:  event.Target,
		TaskID:  event.TaskID,
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		log.Printf("[notify] store %s for task %d: %v", event.Kind, event.TaskID, err)
		return
	}

	select {
	case s.queue <- n:
	default:
		log.Printf("[notify] queue full, %s left for redelivery", n.EventID)
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (s *NotificationService) Run(ctx context.Context) {
	log.Println("[notify] dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[notify] dispatcher stopped")
			return
		case n := <-s.queue:
			s.deliver(ctx, n)
		}
	}
}

// RedeliverPending retries notifications that no sink has accepted yet.
func (s *NotificationService) RedeliverPending(ctx context.Context) error {
	pending, err := s.repo.ListUndelivered(ctx, s.maxAttempts, 100)
	if err != nil {
		return err
	}
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.deliver(ctx, n)
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, n model.Notification) {
	now := s.now()
	claimed, err := s.repo.Claim(ctx, n.ID, now, now.Add(-s.lease))
	if err != nil {
		log.Printf("[notify] %v", err)
		return
	}
	if !claimed {
		return
	}

	s.mu.RLock()
	sinks := append([]NotificationSink(nil), s.sinks...)
	s.mu.RUnlock()

	var errs []error
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.Printf("[notify] deliver %s (%s): %v", n.EventID, n.Kind, err)
		if markErr := s.repo.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
			log.Printf("[notify] %v", markErr)
		}
		return
	}
	if err := s.repo.MarkDelivered(ctx, n.ID); err != nil {
		log.Printf("[notify] %v", err)
	}
}

// Delivered reports whether a sink already pushed eventID to userID.
func (s *NotificationService) Delivered(ctx context.Context, eventID string, userID uint) (bool, error) {
	return s.repo.HasReceipt(ctx, eventID, userID)
}

// RecordDelivery marks eventID as pushed to userID.
func (s *NotificationService) RecordDelivery(ctx context.Context, eventID string, userID uint) error {
	return s.repo.AddReceipt(ctx, eventID, userID)
}

func (s *NotificationService) ListForUser(ctx context.Context, userID uint) ([]model.Notification, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Clear(ctx context.Context, userID, id uint) error {
	err := s.repo.Delete(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(fmt.Sprintf("notification %d not found", id))
	}
	return err
}
