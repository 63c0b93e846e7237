package service

import (
	"context"
	"testing"

	"patchdb/internal/models"
	"patchdb/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reloadUser(t *testing.T, env *testEnv, id uuid.UUID) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, env.db.First(&u, "id = ?", id).Error)
	return u
}

func TestFollowingService_FollowIsIdempotent(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, models.RoleUser)
	bob := testutil.CreateUser(t, env.db, models.RoleUser)

	require.NoError(t, env.following.Follow(ctx, bob.ID, alice.ID))
	require.NoError(t, env.following.Follow(ctx, bob.ID, alice.ID))

	assert.EqualValues(t, 1, env.count(t, &models.Following{}, ""))
	assert.Equal(t, 1, reloadUser(t, env, alice.ID).FollowingCount)
	assert.Equal(t, 1, reloadUser(t, env, bob.ID).FollowersCount)

	require.NoError(t, env.following.Unfollow(ctx, bob.ID, alice.ID))
	require.NoError(t, env.following.Unfollow(ctx, bob.ID, alice.ID))
	assert.EqualValues(t, 0, env.count(t, &models.Following{}, ""))
	assert.Equal(t, 0, reloadUser(t, env, alice.ID).FollowingCount)
	assert.Equal(t, 0, reloadUser(t, env, bob.ID).FollowersCount)
}

func TestFollowingService_Errors(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, models.RoleUser)

	err := env.following.Follow(ctx, alice.ID, alice.ID)
	assertAppError(t, err, models.KindBadRequest, models.ErrIDSelfFollow)

	err = env.following.Follow(ctx, uuid.New(), alice.ID)
	assertAppError(t, err, models.KindNotFound, "user-not-found-error-id")

	err = env.following.Unfollow(ctx, uuid.New(), alice.ID)
	assert.True(t, models.IsKind(err, models.KindNotFound))

	_, err = env.following.GetFollowers(ctx, uuid.New(), alice.ID, 0, 10)
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestFollowingService_ListsAreRequesterRelative(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	star := testutil.CreateUser(t, env.db, models.RoleUser)
	viewer := testutil.CreateUser(t, env.db, models.RoleUser)
	fans := make([]*models.User, 3)
	for i := range fans {
		fans[i] = testutil.CreateUser(t, env.db, models.RoleUser)
		require.NoError(t, env.following.Follow(ctx, star.ID, fans[i].ID))
	}
	require.NoError(t, env.following.Follow(ctx, fans[1].ID, viewer.ID))

	followers, err := env.following.GetFollowers(ctx, star.ID, viewer.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, followers, 3)
	for _, f := range followers {
		assert.Equal(t, f.ID == fans[1].ID, f.IsFollowing, f.Username)
		assert.Nil(t, f.Email)
	}

	page, err := env.following.GetFollowers(ctx, star.ID, viewer.ID, 1, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	own, err := env.following.GetFollowing(ctx, viewer.ID, viewer.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.True(t, own[0].IsFollowing)

	anonymous, err := env.following.GetFollowing(ctx, fans[0].ID, uuid.Nil, 0, 100)
	require.NoError(t, err)
	require.Len(t, anonymous, 1)
	assert.False(t, anonymous[0].IsFollowing)
}

func TestClampPage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		skip, take         int
		wantSkip, wantTake int
	}{
		{0, 0, 0, DefaultPageSize},
		{-5, 10, 0, 10},
		{3, -1, 3, 1},
		{0, 51, 0, MaxPageSize},
		{10, 50, 10, 50},
	}
	for _, tt := range tests {
		skip, take := clampPage(tt.skip, tt.take)
		assert.Equal(t, tt.wantSkip, skip)
		assert.Equal(t, tt.wantTake, take)
	}
}
