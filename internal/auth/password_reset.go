package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderdesk-backend/pkg/security"
)

const invalidResetMessage = "invalid or expired token"

// RequestPasswordReset stores a reset token and emits it for delivery.
// Unknown or inactive emails succeed silently so the endpoint does not reveal
// which addresses have accounts.
func (s *service) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error {
	user, err := s.lookupUser(ctx, req.Email)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return nil
	}

	key, err := security.GenerateToken(accountTokenLength)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset token")
	}
	ttl := s.passwordCfg.ResetTokenTTL
	if ttl <= 0 {
		ttl = defaultResetTTL
	}
	expiresAt := s.now().UTC().Add(ttl)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		token := &models.PasswordResetToken{UserID: user.ID, Key: key, ExpiresAt: expiresAt}
		if err := s.users.WithTx(tx).CreateResetToken(ctx, token); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reset token")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPasswordResetRequested,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID.String(),
			Version:       1,
			Actor:         userActor(user.ID),
			Data: payloads.PasswordResetRequestedEvent{
				UserID:    user.ID,
				Email:     user.Email,
				ResetKey:  key,
				ExpiresAt: expiresAt,
			},
		})
	})
}

// ConfirmPasswordReset sets a new password when the token is live, then drops
// every reset token of the user and the current session.
func (s *service) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	key := strings.TrimSpace(req.Token)
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, invalidResetMessage)
	}
	user, err := s.lookupUser(ctx, req.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, invalidResetMessage)
	}
	if problems := security.ValidatePassword(req.Password, s.passwordCfg, user.Email, user.FirstName, user.LastName); len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid password").
			WithDetails(map[string]any{"password": problems})
	}
	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.users.WithTx(tx)
		if _, err := userRepo.FindLiveResetToken(ctx, user.ID, key, s.now().UTC()); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, invalidResetMessage)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reset token")
		}
		if err := userRepo.UpdateFields(ctx, user.ID, map[string]any{"password_hash": hash}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
		}
		if err := userRepo.DeleteResetTokens(ctx, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop reset tokens")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, user.ID.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}
