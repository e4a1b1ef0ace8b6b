package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec(" 09:30 ")
	require.NoError(t, err)
	assert.Equal(t, "0 30 9 * * *", spec)

	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd", "1:2:3"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchedulerService_RunsJobs(t *testing.T) {
	ctx := context.Background()
	scheduler := NewSchedulerService(time.UTC, time.Second)

	_, err := scheduler.Every(ctx, "noop", 0, func(context.Context) error { return nil })
	assert.Error(t, err)
	_, err = scheduler.Daily(ctx, "digest", "25:00", func(context.Context) error { return nil })
	assert.Error(t, err)

	var runs atomic.Int32
	var hadDeadline atomic.Bool
	_, err = scheduler.Every(ctx, "redeliver", time.Second, func(jobCtx context.Context) error {
		_, ok := jobCtx.Deadline()
		hadDeadline.Store(ok)
		runs.Add(1)
		return errors.New("sink unavailable")
	})
	require.NoError(t, err)
	_, err = scheduler.Daily(ctx, "digest", "07:00", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, scheduler.Entries())

	scheduler.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	scheduler.Stop()
	assert.True(t, hadDeadline.Load(), "jobs run under the job timeout")
}
