package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/internal/server/storage"
)

// CreateUser stores a new account.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	favorites, feedback, err := encodeProfileLists(user)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (username, password_hash, cover_photo, profile_photo, favorites, feedback)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		user.Username, user.PasswordHash, user.CoverPhoto, user.ProfilePhoto, favorites, feedback)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns the account for username.
func (s *Storage) GetUser(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT username, password_hash, cover_photo, profile_photo, favorites, feedback
		FROM users WHERE username = ?`

	var (
		user                models.User
		favorites, feedback string
	)
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.Username, &user.PasswordHash, &user.CoverPhoto, &user.ProfilePhoto,
		&favorites, &feedback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := json.Unmarshal([]byte(favorites), &user.Favorites); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	if err := json.Unmarshal([]byte(feedback), &user.Feedback); err != nil {
		return nil, fmt.Errorf("failed to decode feedback: %w", err)
	}
	return &user, nil
}

// UpdateUser overwrites the profile fields of an existing account.
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	favorites, feedback, err := encodeProfileLists(user)
	if err != nil {
		return err
	}

	query := `
		UPDATE users
		SET cover_photo = ?, profile_photo = ?, favorites = ?, feedback = ?
		WHERE username = ?`
	res, err := s.db.ExecContext(ctx, query,
		user.CoverPhoto, user.ProfilePhoto, favorites, feedback, user.Username)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

func encodeProfileLists(user *models.User) (favorites, feedback string, err error) {
	fav := user.Favorites
	if fav == nil {
		fav = []string{}
	}
	fb := user.Feedback
	if fb == nil {
		fb = []models.Feedback{}
	}

	favData, err := json.Marshal(fav)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode favorites: %w", err)
	}
	fbData, err := json.Marshal(fb)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode feedback: %w", err)
	}
	return string(favData), string(fbData), nil
}

// isUniqueViolation detects a primary-key conflict without importing driver
// internals.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
