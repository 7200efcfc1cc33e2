package sqlite

import (
	"context"
	"fmt"

	"github.com/entsync/entsync/internal/models"
)

// ReplaceJobs clears the collection and inserts the new set in one
// transaction, mirroring the seed-on-startup behavior.
func (s *Storage) ReplaceJobs(ctx context.Context, jobs []models.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("failed to clear jobs: %w", err)
	}

	query := `
		INSERT INTO jobs (id, title, company, location, description, category, salary, image)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, job := range jobs {
		if _, err := tx.ExecContext(ctx, query,
			job.ID, job.Title, job.Company, job.Location,
			job.Description, job.Category, job.Salary, job.Image); err != nil {
			return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit jobs: %w", err)
	}
	return nil
}

// ListJobs returns all seeded jobs.
func (s *Storage) ListJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, company, location, description, category, salary, image
		FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.ID, &job.Title, &job.Company, &job.Location,
			&job.Description, &job.Category, &job.Salary, &job.Image); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}
