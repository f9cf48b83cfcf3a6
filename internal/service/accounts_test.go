package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/repository"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.accounts.Register(ctx, RegisterInput{
		Username: "maria", Email: "Maria@X.com", Password: "supersecret", ConfirmPassword: "supersecret",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.Equal(t, "maria@x.com", u.Email)

	_, err = f.accounts.Register(ctx, RegisterInput{
		Username: "maria", Email: "other@x.com", Password: "supersecret", ConfirmPassword: "supersecret",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.accounts.Register(ctx, RegisterInput{
		Username: "pepe", Email: "pepe@x.com", Password: "supersecret", ConfirmPassword: "different",
	})
	assert.ErrorIs(t, err, ErrValidation)

	got, err := f.accounts.Authenticate(ctx, "maria@x.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.accounts.Authenticate(ctx, "maria@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.accounts.Authenticate(ctx, "ghost@x.com", "supersecret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserManagementSelfProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.accounts.SeedAdmins(ctx, []string{"boss@x.com"}, "supersecret"))
	boss, err := f.accounts.Authenticate(ctx, "boss@x.com", "supersecret")
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, boss.Role)
	sess := model.Session{UserID: boss.ID, Username: boss.Username, Role: boss.Role}

	other, err := f.accounts.Register(ctx, RegisterInput{
		Username: "maria", Email: "maria@x.com", Password: "supersecret", ConfirmPassword: "supersecret",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.accounts.DeleteUser(ctx, sess, boss.ID), ErrSelfAction)
	assert.ErrorIs(t, f.accounts.ChangeRole(ctx, sess, boss.ID, model.RoleUser), ErrSelfAction)
	assert.ErrorIs(t, f.accounts.ChangeRole(ctx, sess, other.ID, "pilot"), ErrValidation)

	require.NoError(t, f.accounts.ChangeRole(ctx, sess, other.ID, "Enterprise"))
	list, err := f.accounts.ListUsers(ctx, sess)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.RoleEnterprise, list[1].Role)

	_, err = f.accounts.ListUsers(ctx, model.Session{UserID: other.ID, Role: model.RoleEnterprise})
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.accounts.DeleteUser(ctx, sess, other.ID))
	assert.ErrorIs(t, f.accounts.DeleteUser(ctx, sess, other.ID), ErrNotFound)
}

func TestChangeRoleRevokesTokensAndPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := repository.NewTokenRepo(f.db)

	u, err := f.accounts.Register(ctx, RegisterInput{
		Username: "maria", Email: "maria@x.com", Password: "supersecret", ConfirmPassword: "supersecret",
	})
	require.NoError(t, err)
	require.NoError(t, tokens.Store(ctx, u.ID, "live", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.Store(ctx, u.ID, "stale", time.Now().Add(-72*time.Hour)))

	require.NoError(t, f.accounts.ChangeRole(ctx, model.Session{UserID: u.ID + 1, Role: model.RoleAdmin}, u.ID, model.RoleEnterprise))
	_, err = tokens.Consume(ctx, "live")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := f.accounts.PurgeTokens(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
