package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-market/internal/model"
)

func TestUserDirectory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	alice, err := f.users.Register(ctx, UserInput{Username: "  alice ", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Username)
	assert.True(t, alice.IsActive())

	_, err = f.users.Register(ctx, UserInput{Username: "alice"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.users.Resolve(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.users.SetStatus(ctx, alice.ID, "BANNED"), ErrValidation)
	assert.ErrorIs(t, f.users.SetStatus(ctx, 999, model.UserInactive), ErrNotFound)
	require.NoError(t, f.users.SetStatus(ctx, alice.ID, model.UserInactive))

	resolved, err := f.users.Resolve(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, resolved.IsActive())
}

func TestUserDirectory_LinkTelegram(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	anon, err := f.users.LinkTelegram(ctx, 555, "  ")
	require.NoError(t, err)
	assert.Equal(t, "tg555", anon.Username)

	found, err := f.users.FindByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, anon.ID, found.ID)

	_, err = f.users.FindByTelegramID(ctx, 777)
	assert.ErrorIs(t, err, ErrNotFound)

	linked, err := f.users.ListLinked(ctx)
	require.NoError(t, err)
	assert.Len(t, linked, 1)

	all, err := f.users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
