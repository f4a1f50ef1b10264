package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/security"
)

var fastPasswords = config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32, MinLength: 8}

func strPtr(v string) *string { return &v }

func newProfileFixture(t *testing.T) (Service, *Repository, auth.Caller) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	hash, err := security.HashPassword("Orig1nal!pass", fastPasswords)
	require.NoError(t, err)
	user, err := repo.Create(context.Background(), CreateUserDTO{
		Email:        "ivan@example.com",
		PasswordHash: hash,
		FirstName:    "Ivan",
		LastName:     "Petrov",
		Company:      "Acme",
		Position:     "Buyer",
		IsActive:     true,
	})
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), CreateUserDTO{Email: "taken@example.com", PasswordHash: hash, FirstName: "T", LastName: "T", IsActive: true})
	require.NoError(t, err)

	svc, err := NewService(repo, fastPasswords)
	require.NoError(t, err)
	return svc, repo, auth.Caller{UserID: user.ID, UserType: user.Type}
}

func TestGetProfile(t *testing.T) {
	svc, _, caller := newProfileFixture(t)

	profile, err := svc.GetProfile(context.Background(), caller)
	require.NoError(t, err)
	require.Equal(t, "ivan@example.com", profile.Email)
	require.Equal(t, enums.UserTypeBuyer, profile.Type)
	require.Equal(t, "Acme", profile.Company)

	_, err = svc.GetProfile(context.Background(), auth.Caller{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.GetProfile(context.Background(), auth.Caller{UserID: uuid.New(), UserType: enums.UserTypeBuyer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateProfilePartial(t *testing.T) {
	svc, repo, caller := newProfileFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateProfile(ctx, caller, ProfileUpdate{Position: strPtr(" Head buyer "), Email: strPtr("IVAN.P@example.com")}))

	user, err := repo.FindByID(ctx, caller.UserID)
	require.NoError(t, err)
	require.Equal(t, "Head buyer", user.Position)
	require.Equal(t, "ivan.p@example.com", user.Email)
	require.Equal(t, "Ivan", user.FirstName)
}

func TestUpdateProfilePassword(t *testing.T) {
	svc, repo, caller := newProfileFixture(t)
	ctx := context.Background()

	err := svc.UpdateProfile(ctx, caller, ProfileUpdate{Password: strPtr("1234")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, svc.UpdateProfile(ctx, caller, ProfileUpdate{Password: strPtr("brand-New-secret9")}))
	user, err := repo.FindByID(ctx, caller.UserID)
	require.NoError(t, err)
	ok, err := security.VerifyPassword("brand-New-secret9", user.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUpdateProfileRejectsBadInput(t *testing.T) {
	svc, _, caller := newProfileFixture(t)
	ctx := context.Background()

	err := svc.UpdateProfile(ctx, caller, ProfileUpdate{Email: strPtr("taken@example.com")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	err = svc.UpdateProfile(ctx, caller, ProfileUpdate{FirstName: strPtr("  "), Email: strPtr("nope")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Contains(t, details, "first_name")
	require.Contains(t, details, "email")
}
