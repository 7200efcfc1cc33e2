// Package storage defines the server persistence contracts.
package storage

import (
	"context"

	"github.com/entsync/entsync/internal/models"
)

//go:generate moq -out storage_mock.go . UserStorage JobStorage EntityStorage

// UserStorage persists user accounts and profiles.
type UserStorage interface {
	// CreateUser stores a new account. Returns ErrUserAlreadyExists when the
	// username is taken.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser returns the account, or ErrUserNotFound.
	GetUser(ctx context.Context, username string) (*models.User, error)

	// UpdateUser overwrites the profile fields of an existing account.
	UpdateUser(ctx context.Context, user *models.User) error
}

// JobStorage persists the seeded job collection.
type JobStorage interface {
	// ReplaceJobs atomically swaps the whole collection.
	ReplaceJobs(ctx context.Context, jobs []models.Job) error

	// ListJobs returns all jobs.
	ListJobs(ctx context.Context) ([]models.Job, error)
}

// EntityStorage persists synced entity collections, one row per (kind, id),
// tombstones included.
type EntityStorage interface {
	// ListEntities returns all live entities of the kind.
	ListEntities(ctx context.Context, kind string) ([]*models.Entity, error)

	// GetEntity returns one entity (even tombstoned), or ErrEntityNotFound.
	GetEntity(ctx context.Context, kind, id string) (*models.Entity, error)

	// SaveEntity upserts under last-write-wins and reports whether the write
	// was applied. When the stored row is strictly newer the stored entity
	// wins and applied is false.
	SaveEntity(ctx context.Context, kind string, entity *models.Entity) (applied bool, err error)
}
