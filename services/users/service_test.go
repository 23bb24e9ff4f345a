package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/repositories"
	"github.com/upb/identity-core/repositories/memory"
	"github.com/upb/identity-core/services"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Service, *repositories.Repositories) {
	t.Helper()
	repos := memory.NewStore().Repositories()
	return NewService(repos, zap.NewNop()), repos
}

func TestService_ListAndGet(t *testing.T) {
	ctx := context.Background()
	svc, repos := setup(t)

	ann, err := repos.Users.Create(ctx, models.NewUser{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = repos.Users.Create(ctx, models.NewUser{Name: "Bob"})
	require.NoError(t, err)
	_, err = repos.IdentityLinks.Create(ctx, models.NewIdentityLink{Provider: "cognito", Sub: "sub-ann", UserID: ann.ID})
	require.NoError(t, err)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].Name)

	got, err := svc.Get(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	require.Len(t, got.Links, 1)
	assert.Equal(t, "sub-ann", got.Links[0].Sub)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, services.IsNotFoundError(err))
}

func TestService_UpdateRole(t *testing.T) {
	ctx := context.Background()
	svc, repos := setup(t)
	user, err := repos.Users.Create(ctx, models.NewUser{Name: "Ann"})
	require.NoError(t, err)

	updated, err := svc.UpdateRole(ctx, user.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)

	stored, err := repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin())

	for _, bad := range []string{"guest", "root", ""} {
		_, err = svc.UpdateRole(ctx, user.ID, bad)
		assert.True(t, services.IsValidationError(err), bad)
	}

	_, err = svc.UpdateRole(ctx, uuid.New(), "user")
	assert.True(t, services.IsNotFoundError(err))
}

func TestService_DeleteCascadesLinks(t *testing.T) {
	ctx := context.Background()
	svc, repos := setup(t)
	user, err := repos.Users.Create(ctx, models.NewUser{Name: "Ann"})
	require.NoError(t, err)
	_, err = repos.IdentityLinks.Create(ctx, models.NewIdentityLink{Provider: "cognito", Sub: "sub-1", UserID: user.ID})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user.ID))

	_, err = repos.IdentityLinks.FindBySub(ctx, "cognito", "sub-1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	err = svc.Delete(ctx, user.ID)
	assert.True(t, services.IsNotFoundError(err))
}

func TestService_UpdateName(t *testing.T) {
	ctx := context.Background()
	svc, repos := setup(t)
	user, err := repos.Users.Create(ctx, models.NewUser{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	updated, err := svc.UpdateName(ctx, user.ID, "  Ann Lee ")
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", updated.Name)
	assert.Equal(t, "ann@example.com", updated.Email)
	assert.Equal(t, models.RoleUser, updated.Role)

	stored, err := repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", stored.Name)

	_, err = svc.UpdateName(ctx, user.ID, "   ")
	assert.True(t, services.IsValidationError(err))

	_, err = svc.UpdateName(ctx, uuid.New(), "Bob")
	assert.True(t, services.IsNotFoundError(err))
}

func TestService_Statistics(t *testing.T) {
	ctx := context.Background()
	svc, repos := setup(t)

	ann, err := repos.Users.Create(ctx, models.NewUser{Name: "Ann"})
	require.NoError(t, err)
	_, err = repos.Users.Create(ctx, models.NewUser{Name: "Bob"})
	require.NoError(t, err)
	_, err = svc.UpdateRole(ctx, ann.ID, "admin")
	require.NoError(t, err)

	t.Run("same day", func(t *testing.T) {
		svc.now = func() time.Time { return ann.CreatedAt }

		stats, err := svc.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalUsers)
		assert.Equal(t, 1, stats.AdminUsers)
		assert.Equal(t, 2, stats.NewUsersToday)
		assert.Equal(t, ann.CreatedAt.UTC(), stats.GeneratedAt)
	})

	t.Run("next day", func(t *testing.T) {
		svc.now = func() time.Time { return ann.CreatedAt.Add(24 * time.Hour) }

		stats, err := svc.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalUsers)
		assert.Zero(t, stats.NewUsersToday)
	})
}
