package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/security"
)

// Service serves the caller's own profile.
type Service interface {
	GetProfile(ctx context.Context, caller auth.Caller) (*UserDTO, error)
	UpdateProfile(ctx context.Context, caller auth.Caller, update ProfileUpdate) error
}

type service struct {
	repo        *Repository
	passwordCfg config.PasswordConfig
	validate    *validator.Validate
}

func NewService(repo *Repository, passwordCfg config.PasswordConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo, passwordCfg: passwordCfg, validate: validator.New()}, nil
}

func (s *service) GetProfile(ctx context.Context, caller auth.Caller) (*UserDTO, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, caller auth.Caller, update ProfileUpdate) error {
	if err := caller.RequireAuthenticated(); err != nil {
		return err
	}
	user, err := s.repo.FindByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	fields := map[string]any{}
	details := map[string]any{}
	setText := func(column string, value *string) {
		if value == nil {
			return
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" {
			details[column] = "must not be blank"
			return
		}
		fields[column] = trimmed
	}
	setText("first_name", update.FirstName)
	setText("last_name", update.LastName)
	setText("company", update.Company)
	setText("position", update.Position)

	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if err := s.validate.Var(email, "required,email"); err != nil {
			details["email"] = "must be a valid email address"
		} else if email != user.Email {
			taken, err := s.emailTaken(ctx, email)
			if err != nil {
				return err
			}
			if taken {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			fields["email"] = email
		}
	}

	if update.Password != nil {
		if problems := security.ValidatePassword(*update.Password, s.passwordCfg, user.Email, user.FirstName, user.LastName); len(problems) > 0 {
			details["password"] = problems
		} else {
			hash, err := security.HashPassword(*update.Password, s.passwordCfg)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
			}
			fields["password_hash"] = hash
		}
	}

	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid profile").WithDetails(details)
	}
	if err := s.repo.UpdateFields(ctx, user.ID, fields); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}
	return nil
}

func (s *service) emailTaken(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check user email")
	}
}
