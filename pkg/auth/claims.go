package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
)

// AccessTokenPayload is what a caller supplies when minting. An empty JTI gets
// a fresh uuid.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	UserType enums.UserType
	JTI      string
}

// AccessTokenClaims is the body of the JWT handed to clients.
type AccessTokenClaims struct {
	UserID   uuid.UUID      `json:"user_id"`
	UserType enums.UserType `json:"user_type"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user_id", ErrMalformedClaims)
	}
	if c.Subject != c.UserID.String() {
		return fmt.Errorf("%w: subject does not match user_id", ErrMalformedClaims)
	}
	if !c.UserType.IsValid() {
		return fmt.Errorf("%w: user_type %q", ErrMalformedClaims, c.UserType)
	}
	return nil
}
