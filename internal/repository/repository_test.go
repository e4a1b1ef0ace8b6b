package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-market/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createUser(t *testing.T, repo *UserRepository, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestTaskRepository_SaveComparesVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	tasks := NewTaskRepository(db)
	owner := createUser(t, users, "alice")

	task := &model.Task{OwnerID: owner.ID, Status: model.StatusOpen, Title: "Fix bike", Category: "ENGINEERING"}
	require.NoError(t, tasks.Create(ctx, task))
	assert.EqualValues(t, 1, task.Version)
	assert.Equal(t, model.Active, task.ActiveStatus)

	first, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	second, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)

	first.Title = "Fix the bike"
	require.NoError(t, tasks.Save(ctx, first))
	assert.EqualValues(t, 2, first.Version)

	second.Title = "Lost update"
	assert.ErrorIs(t, tasks.Save(ctx, second), ErrStaleTask)

	stored, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix the bike", stored.Title)
	assert.EqualValues(t, 2, stored.Version)
}

func TestTaskRepository_FindAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	tasks := NewTaskRepository(newTestDB(t))

	_, err := tasks.FindByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, tasks.Delete(ctx, 42), ErrNotFound)
}

func TestTaskRepository_PartyQueries(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	tasks := NewTaskRepository(db)
	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")
	carol := createUser(t, users, "carol")

	pending := &model.Task{OwnerID: alice.ID, AssigneeID: &bob.ID, Status: model.StatusPendingVerification, MarkedDoneBy: &bob.ID, Title: "Essay", Category: "LITERATURE"}
	done := &model.Task{OwnerID: carol.ID, AssigneeID: &alice.ID, Status: model.StatusDone, Title: "Chart", Category: "FINANCE"}
	open := &model.Task{OwnerID: carol.ID, Status: model.StatusOpen, Title: "Poster", Category: "ART_DESIGN"}
	for _, task := range []*model.Task{pending, done, open} {
		require.NoError(t, tasks.Create(ctx, task))
	}

	busy, err := tasks.ExistsByParty(ctx, bob.ID, model.OngoingStatuses...)
	require.NoError(t, err)
	assert.True(t, busy)

	busy, err = tasks.ExistsByParty(ctx, carol.ID, model.OngoingStatuses...)
	require.NoError(t, err)
	assert.False(t, busy, "open tasks are not ongoing")

	awaiting, err := tasks.ListAwaitingConfirmation(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, pending.ID, awaiting[0].ID)

	awaiting, err = tasks.ListAwaitingConfirmation(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, awaiting, "the requester does not confirm")

	history, err := tasks.ListByParty(ctx, alice.ID, model.StatusDone)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, done.ID, history[0].ID)

	owned, err := tasks.ListByOwner(ctx, carol.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	accepted, err := tasks.ListByAssignee(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, accepted, 1)

	count, err := tasks.CountByStatus(ctx, model.StatusOpen)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	all, err := tasks.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTaskRepository_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	tasks := NewTaskRepository(db)
	owner := createUser(t, users, "alice")

	err := tasks.Transaction(ctx, func(tx *TaskRepository) error {
		require.NoError(t, tx.Create(ctx, &model.Task{OwnerID: owner.ID, Status: model.StatusOpen, Title: "Temp", Category: "MUSIC"}))
		return ErrStaleTask
	})
	assert.ErrorIs(t, err, ErrStaleTask)

	all, err := tasks.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	users := NewUserRepository(newTestDB(t))
	createUser(t, users, "alice")

	err := users.Create(context.Background(), &model.User{Username: "alice"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepository_UpsertFromTelegram(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(newTestDB(t))
	existing := createUser(t, users, "alice")

	linked, err := users.UpsertFromTelegram(ctx, 1001, "alice")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, linked.ID, "an unlinked account with the same username is reused")
	require.NotNil(t, linked.TelegramID)
	assert.EqualValues(t, 1001, *linked.TelegramID)

	again, err := users.UpsertFromTelegram(ctx, 1001, "renamed")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, again.ID)

	other, err := users.UpsertFromTelegram(ctx, 2002, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, other.ID)
	assert.Equal(t, "alice_2002", other.Username)

	linkedUsers, err := users.ListLinked(ctx)
	require.NoError(t, err)
	assert.Len(t, linkedUsers, 2)

	require.NoError(t, users.SetStatus(ctx, other.ID, model.UserInactive))
	linkedUsers, err = users.ListLinked(ctx)
	require.NoError(t, err)
	assert.Len(t, linkedUsers, 1)

	assert.ErrorIs(t, users.SetStatus(ctx, 999, model.UserActive), ErrNotFound)
}

func TestNotificationRepository_Outbox(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	notifications := NewNotificationRepository(db)
	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	broadcast := &model.Notification{EventID: "e-1", Kind: model.EventTaskAdded, Message: "New task added: Essay", TaskID: 1}
	direct := &model.Notification{EventID: "e-2", Kind: model.EventTaskAccepted, Message: "bob accepted", TaskID: 1, UserID: &alice.ID}
	other := &model.Notification{EventID: "e-3", Kind: model.EventTaskDoneRequested, Message: "done?", TaskID: 2, UserID: &bob.ID}
	for _, n := range []*model.Notification{broadcast, direct, other} {
		require.NoError(t, notifications.Create(ctx, n))
	}

	inbox, err := notifications.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, direct.ID, inbox[0].ID)
	assert.Equal(t, broadcast.ID, inbox[1].ID)

	require.NoError(t, notifications.MarkDelivered(ctx, broadcast.ID))
	require.NoError(t, notifications.MarkFailed(ctx, direct.ID, "chat not found"))
	require.NoError(t, notifications.MarkFailed(ctx, direct.ID, "chat not found"))

	pending, err := notifications.ListUndelivered(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "chat not found", pending[0].LastError)

	pending, err = notifications.ListUndelivered(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "rows that used up their attempts are skipped")
	assert.Equal(t, other.ID, pending[0].ID)

	require.NoError(t, notifications.MarkAllRead(ctx, alice.ID))
	inbox, err = notifications.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, inbox[0].Read)

	assert.ErrorIs(t, notifications.Delete(ctx, alice.ID, other.ID), ErrNotFound)
	require.NoError(t, notifications.Delete(ctx, alice.ID, direct.ID))
}

func TestNotificationRepository_ClaimAndReceipts(t *testing.T) {
	ctx := context.Background()
	notifications := NewNotificationRepository(newTestDB(t))

	n := &model.Notification{EventID: "e-1", Kind: model.EventTaskAdded, Message: "New task added: Essay", TaskID: 1}
	require.NoError(t, notifications.Create(ctx, n))

	now := time.Now()
	claimed, err := notifications.Claim(ctx, n.ID, now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = notifications.Claim(ctx, n.ID, now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed, "a fresh lease cannot be taken twice")

	later := now.Add(2 * time.Minute)
	claimed, err = notifications.Claim(ctx, n.ID, later, later.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed, "an expired lease can be taken over")

	require.NoError(t, notifications.MarkFailed(ctx, n.ID, "timeout"))
	claimed, err = notifications.Claim(ctx, n.ID, later, later.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed, "a failed attempt releases the lease")

	require.NoError(t, notifications.MarkDelivered(ctx, n.ID))
	claimed, err = notifications.Claim(ctx, n.ID, later.Add(time.Hour), later.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed, "delivered rows are never claimed")

	seen, err := notifications.HasReceipt(ctx, "e-1", 5)
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, notifications.AddReceipt(ctx, "e-1", 5))
	require.NoError(t, notifications.AddReceipt(ctx, "e-1", 5))
	seen, err = notifications.HasReceipt(ctx, "e-1", 5)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestEnsureDirForSQLite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	require.NoError(t, ensureDirForSQLite("file:"+filepath.Join(dir, "db.sqlite")+"?cache=shared"))
	assert.DirExists(t, dir)
	assert.NoError(t, ensureDirForSQLite(":memory:"))
}
