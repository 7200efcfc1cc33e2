// Package validation holds the input checks shared by the client commands.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError marks a rejected input; callers show it to the user
// instead of treating it as a failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UsernamePattern is the allowed username format: latin letters, digits and
// underscores, 3-32 characters.
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

const (
	// MinUsernameLen is the minimum username length.
	MinUsernameLen = 3
	// MaxUsernameLen is the maximum username length.
	MaxUsernameLen = 32
	// MinPasswordLen is the minimum password length.
	MinPasswordLen = 6
)

// ValidateUsername checks that username matches UsernamePattern.
func ValidateUsername(username string) error {
	if username == "" {
		return &ValidationError{Field: "username", Reason: "cannot be empty"}
	}
	if len(username) < MinUsernameLen {
		return &ValidationError{Field: "username", Reason: fmt.Sprintf("must be at least %d characters long", MinUsernameLen)}
	}
	if len(username) > MaxUsernameLen {
		return &ValidationError{Field: "username", Reason: fmt.Sprintf("must not exceed %d characters", MaxUsernameLen)}
	}
	if !UsernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Reason: "can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)"}
	}
	return nil
}

// ValidatePassword checks the minimum password requirements.
func ValidatePassword(password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Reason: "cannot be empty"}
	}
	if len(password) < MinPasswordLen {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters long", MinPasswordLen)}
	}
	return nil
}

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// ParseAmount normalizes a monetary amount to a decimal string with exactly
// two fraction digits ("7" -> "7.00", "7.5" -> "7.50"). Negative values,
// thousands separators and more than two fraction digits are rejected.
func ParseAmount(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Field: "amount", Reason: "cannot be empty"}
	}
	if !amountPattern.MatchString(s) {
		return "", &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be a positive number with up to two decimal places, got %q", s)}
	}

	whole, frac, ok := strings.Cut(s, ".")
	if !ok {
		frac = ""
	}
	for len(frac) < 2 {
		frac += "0"
	}
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	return whole + "." + frac, nil
}
