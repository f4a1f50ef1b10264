package auth

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/internal/users"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderdesk-backend/pkg/security"
)

// Register creates an inactive account and one confirmation token, and emits
// user_registered so the token reaches the user by mail.
func (s *service) Register(ctx context.Context, req RegisterRequest) error {
	email := normalizeEmail(req.Email)
	details := map[string]any{}
	required := map[string]string{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"email":      email,
		"password":   req.Password,
		"company":    req.Company,
		"position":   req.Position,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			details[field] = "this field is required"
		}
	}
	userType, err := enums.ParseUserType(req.Type)
	if err != nil {
		details["type"] = "must be buyer or shop"
	}
	if _, missing := details["password"]; !missing {
		if problems := security.ValidatePassword(req.Password, s.passwordCfg, email, req.FirstName, req.LastName); len(problems) > 0 {
			details["password"] = problems
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid registration").WithDetails(details)
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	key, err := security.GenerateToken(accountTokenLength)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate confirmation token")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.users.WithTx(tx)

		existing, err := s.lookupUserIn(ctx, userRepo, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Company:      strings.TrimSpace(req.Company),
			Position:     strings.TrimSpace(req.Position),
			Type:         userType,
			IsActive:     false,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}

		if err := userRepo.CreateConfirmToken(ctx, &models.ConfirmEmailToken{UserID: user.ID, Key: key}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create confirmation token")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID.String(),
			Version:       1,
			Actor:         userActor(user.ID),
			Data: payloads.UserRegisteredEvent{
				UserID:     user.ID,
				Email:      user.Email,
				ConfirmKey: key,
			},
		})
	})
}
