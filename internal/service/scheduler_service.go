package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a background task run by the scheduler. Its context is cancelled
// when the job timeout expires.
type Job func(ctx context.Context) error

// SchedulerService runs the outbox redelivery and digest jobs on cron.
// A run is skipped while the previous run of the same job is still going.
type SchedulerService struct {
	cron       *cron.Cron
	jobTimeout time.Duration
}

func NewSchedulerService(loc *time.Location, jobTimeout time.Duration) *SchedulerService {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &SchedulerService{
		cron:       cron.New(cron.WithLocation(loc), cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobTimeout: jobTimeout,
	}
}

// Daily registers job at the given HH:MM local time.
func (s *SchedulerService) Daily(ctx context.Context, name, at string, job Job) (cron.EntryID, error) {
	spec, err := buildDailySpec(at)
	if err != nil {
		return 0, err
	}
	return s.add(ctx, name, spec, job)
}

// Every registers job to run once per interval, rounded down to whole seconds.
func (s *SchedulerService) Every(ctx context.Context, name string, interval time.Duration, job Job) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("%s: interval must be positive", name)
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.add(ctx, name, fmt.Sprintf("@every %ds", seconds), job)
}

func (s *SchedulerService) add(ctx context.Context, name, spec string, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
		if err := job(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[scheduler] %s: %v", name, err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	log.Printf("[scheduler] %s scheduled (%s)", name, spec)
	return id, nil
}

func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to return.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

func buildDailySpec(at string) (string, error) {
	hourStr, minuteStr, ok := strings.Cut(strings.TrimSpace(at), ":")
	if !ok {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", at)
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(minuteStr)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", at)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
