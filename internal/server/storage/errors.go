package storage

import "errors"

// Common server storage errors.
var (
	// ErrUserNotFound indicates that no account exists for the username.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a taken username.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrEntityNotFound indicates that no entity row exists for (kind, id).
	ErrEntityNotFound = errors.New("entity not found")
)
