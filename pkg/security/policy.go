package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/angelmondragon/orderdesk-backend/pkg/config"
)

const defaultMinLength = 8

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "12345678": {}, "123456789": {}, "qwerty123": {},
	"iloveyou": {}, "11111111": {}, "abc12345": {}, "letmein1": {}, "qwertyuiop": {},
}

// ValidatePassword lists every strength rule password breaks. related holds
// the user's email and names; any of them appearing in the password fails it.
func ValidatePassword(password string, cfg config.PasswordConfig, related ...string) []string {
	minLength := cfg.MinLength
	if minLength <= 0 {
		minLength = defaultMinLength
	}

	var problems []string
	if utf8.RuneCountInString(password) < minLength {
		problems = append(problems, fmt.Sprintf("This password is too short. It must contain at least %d characters.", minLength))
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		problems = append(problems, "This password is entirely numeric.")
	}
	lower := strings.ToLower(password)
	if _, ok := commonPasswords[lower]; ok {
		problems = append(problems, "This password is too common.")
	}
	if resemblesAny(lower, related) {
		problems = append(problems, "The password is too similar to your personal details.")
	}
	return problems
}

func resemblesAny(lowerPassword string, related []string) bool {
	for _, attr := range related {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if local, _, ok := strings.Cut(attr, "@"); ok && local != "" {
			attr = local
		}
		if len(attr) >= 3 && strings.Contains(lowerPassword, attr) {
			return true
		}
	}
	return false
}
