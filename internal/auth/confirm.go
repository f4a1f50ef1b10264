package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/internal/users"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
)

const invalidConfirmationMessage = "invalid token or email"

// ConfirmEmail activates the account when the token belongs to the email's
// user and consumes the token. A mismatch changes nothing.
func (s *service) ConfirmEmail(ctx context.Context, req ConfirmEmailRequest) error {
	key := strings.TrimSpace(req.Token)
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, invalidConfirmationMessage)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.users.WithTx(tx)

		user, err := s.lookupUserIn(ctx, userRepo, req.Email)
		if err != nil {
			return err
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, invalidConfirmationMessage)
		}

		token, err := userRepo.FindConfirmToken(ctx, user.ID, key)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, invalidConfirmationMessage)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load confirmation token")
		}

		if err := userRepo.Activate(ctx, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate user")
		}
		if err := userRepo.DeleteConfirmToken(ctx, token.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume confirmation token")
		}
		return nil
	})
}

func (s *service) lookupUserIn(ctx context.Context, repo *users.Repository, email string) (*models.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, nil
	}
	user, err := repo.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	return user, nil
}
