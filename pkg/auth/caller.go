package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
)

// Caller is the authenticated identity passed into every domain operation.
type Caller struct {
	UserID   uuid.UUID
	UserType enums.UserType
}

// CallerFromClaims builds a Caller from verified token claims.
func CallerFromClaims(claims *AccessTokenClaims) Caller {
	if claims == nil {
		return Caller{}
	}
	return Caller{UserID: claims.UserID, UserType: claims.UserType}
}

// Authenticated reports whether the caller carries a user id.
func (c Caller) Authenticated() bool {
	return c.UserID != uuid.Nil
}

func (c Caller) IsShop() bool {
	return c.UserType == enums.UserTypeShop
}

// RequireAuthenticated returns UNAUTHORIZED for anonymous callers.
func (c Caller) RequireAuthenticated() error {
	if !c.Authenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "log in required")
	}
	return nil
}

// RequireShop returns FORBIDDEN unless the caller is a partner.
func (c Caller) RequireShop() error {
	if err := c.RequireAuthenticated(); err != nil {
		return err
	}
	if !c.IsShop() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only shops may perform this action")
	}
	return nil
}

// RequireBuyer returns FORBIDDEN unless the caller is a buyer.
func (c Caller) RequireBuyer() error {
	if err := c.RequireAuthenticated(); err != nil {
		return err
	}
	if c.UserType != enums.UserTypeBuyer {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only buyers may perform this action")
	}
	return nil
}
