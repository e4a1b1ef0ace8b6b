package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderService_Summary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reminders := NewReminderService(f.tasks)
	owner := f.user(t, "owner")
	helper := f.user(t, "helper")
	poster := f.user(t, "poster")

	task := f.inProgress(t, owner, helper, "Fix <b>bike</b>")
	f.openTask(t, poster, "Poster")
	_, err := f.lifecycle.RequestMarkDone(ctx, task.ID, helper.ID)
	require.NoError(t, err)

	now := time.Now().Add(72 * time.Hour)

	text, err := reminders.Summary(ctx, *owner, now)
	require.NoError(t, err)
	assert.Contains(t, text, "Fix &lt;b&gt;bike&lt;/b&gt;")
	assert.Contains(t, text, "owner, Pending Verification")
	assert.Contains(t, text, "no progress for 3 days")
	assert.Contains(t, text, "/confirm")
	assert.Contains(t, text, "Open tasks in the marketplace: <b>1</b>")

	text, err = reminders.Summary(ctx, *helper, now)
	require.NoError(t, err)
	assert.Contains(t, text, "waiting for the other party")
	assert.Contains(t, text, "nothing to confirm")

	text, err = reminders.Summary(ctx, *poster, now)
	require.NoError(t, err)
	assert.Contains(t, text, "none, you are free to post or accept a task")
}
