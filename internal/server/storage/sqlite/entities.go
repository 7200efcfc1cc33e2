package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/internal/server/storage"
)

// ListEntities returns all live entities of the kind, newest first.
func (s *Storage) ListEntities(ctx context.Context, kind string) ([]*models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, updated_at, deleted, payload
		FROM entities WHERE kind = ? AND deleted = 0
		ORDER BY updated_at DESC, id`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

// GetEntity returns one entity row, tombstoned or not.
func (s *Storage) GetEntity(ctx context.Context, kind, id string) (*models.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, updated_at, deleted, payload
		FROM entities WHERE kind = ? AND id = ?`, kind, id)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// SaveEntity upserts under last-write-wins. A stored row with a strictly
// larger updated_at wins and the write is not applied; on equal timestamps
// the incoming write is taken (the caller, the server, is the tie-break
// authority).
func (s *Storage) SaveEntity(ctx context.Context, kind string, entity *models.Entity) (bool, error) {
	payload, err := json.Marshal(entity.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode entity payload: %w", err)
	}

	query := `
		INSERT INTO entities (kind, id, updated_at, deleted, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			payload = excluded.payload
		WHERE excluded.updated_at >= entities.updated_at`
	res, err := s.db.ExecContext(ctx, query,
		kind, entity.ID, entity.UpdatedAt, boolToInt(entity.Deleted), string(payload))
	if err != nil {
		return false, fmt.Errorf("failed to save entity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		entity  models.Entity
		deleted int
		payload string
	)
	if err := row.Scan(&entity.ID, &entity.UpdatedAt, &deleted, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	entity.Deleted = deleted != 0
	if err := json.Unmarshal([]byte(payload), &entity.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode entity payload: %w", err)
	}
	return &entity, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
