package enums

import (
	"fmt"
	"strings"
)

// UserType separates partners that own a shop from buyers.
type UserType string

const (
	UserTypeBuyer UserType = "buyer"
	UserTypeShop  UserType = "shop"
)

var validUserTypes = []UserType{
	UserTypeBuyer,
	UserTypeShop,
}

// String implements fmt.Stringer.
func (u UserType) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UserType.
func (u UserType) IsValid() bool {
	for _, candidate := range validUserTypes {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUserType converts raw input into a UserType; empty input means buyer.
func ParseUserType(value string) (UserType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return UserTypeBuyer, nil
	}
	for _, candidate := range validUserTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user type %q", value)
}
