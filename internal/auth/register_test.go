package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
)

func TestRegisterCreatesInactiveUserAndOneToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.Register(ctx, validRegistration()))

	require.Equal(t, int64(1), h.count(t, &models.User{}))
	require.Equal(t, int64(1), h.count(t, &models.ConfirmEmailToken{}))

	user, err := h.users.FindByEmail(ctx, "anna@example.com")
	require.NoError(t, err)
	require.False(t, user.IsActive)
	require.Equal(t, enums.UserTypeBuyer, user.Type)
	require.NotEqual(t, "correct-Horse-42", user.PasswordHash)

	var token models.ConfirmEmailToken
	require.NoError(t, h.db.First(&token).Error)
	require.Equal(t, user.ID, token.UserID)

	events := eventsOf[payloads.UserRegisteredEvent](t, h.db, enums.EventUserRegistered)
	require.Len(t, events, 1)
	require.Equal(t, token.Key, events[0].ConfirmKey)
	require.Equal(t, "anna@example.com", events[0].Email)
}

func TestRegisterShopType(t *testing.T) {
	h := newHarness(t)
	req := validRegistration()
	req.Type = "shop"
	require.NoError(t, h.svc.Register(context.Background(), req))

	user, err := h.users.FindByEmail(context.Background(), "anna@example.com")
	require.NoError(t, err)
	require.Equal(t, enums.UserTypeShop, user.Type)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := validRegistration()
	req.Company = ""
	req.Type = "admin"
	err := h.svc.Register(ctx, req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Contains(t, details, "company")
	require.Contains(t, details, "type")

	weak := validRegistration()
	weak.Password = "12345678"
	err = h.svc.Register(ctx, weak)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.Zero(t, h.count(t, &models.User{}))
	require.Zero(t, h.count(t, &models.OutboxEvent{}))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.Register(ctx, validRegistration()))

	again := validRegistration()
	again.Email = " ANNA@example.com "
	err := h.svc.Register(ctx, again)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Equal(t, int64(1), h.count(t, &models.User{}))
	require.Equal(t, int64(1), h.count(t, &models.ConfirmEmailToken{}))
}

func TestConfirmEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.Register(ctx, validRegistration()))

	var token models.ConfirmEmailToken
	require.NoError(t, h.db.First(&token).Error)

	err := h.svc.ConfirmEmail(ctx, ConfirmEmailRequest{Email: "anna@example.com", Token: "wrong"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	user, err := h.users.FindByEmail(ctx, "anna@example.com")
	require.NoError(t, err)
	require.False(t, user.IsActive)
	require.Equal(t, int64(1), h.count(t, &models.ConfirmEmailToken{}))

	err = h.svc.ConfirmEmail(ctx, ConfirmEmailRequest{Email: "other@example.com", Token: token.Key})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, h.svc.ConfirmEmail(ctx, ConfirmEmailRequest{Email: "anna@example.com", Token: token.Key}))
	user, err = h.users.FindByEmail(ctx, "anna@example.com")
	require.NoError(t, err)
	require.True(t, user.IsActive)
	require.Zero(t, h.count(t, &models.ConfirmEmailToken{}))

	err = h.svc.ConfirmEmail(ctx, ConfirmEmailRequest{Email: "anna@example.com", Token: token.Key})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
