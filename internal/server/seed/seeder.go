// Package seed fills the job collection from the upstream public API.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/internal/server/storage"
)

// Placeholder values for upstream records with missing fields.
const (
	defaultTitle       = "Untitled"
	defaultCompany     = "Unknown"
	defaultLocation    = "N/A"
	defaultDescription = "No description available"
	defaultCategory    = "General"
	defaultSalary      = "Not specified"
	defaultImage       = "https://via.placeholder.com/100?text=Job"
)

// Seeder fetches job postings from the upstream API and replaces the stored
// collection. Runs on startup and again whenever a read finds the collection
// empty.
type Seeder struct {
	httpClient  *http.Client
	jobs        storage.JobStorage
	logger      *slog.Logger
	upstreamURL string
}

// New creates a seeder against upstreamURL.
func New(upstreamURL string, jobs storage.JobStorage, logger *slog.Logger) *Seeder {
	return &Seeder{
		upstreamURL: upstreamURL,
		jobs:        jobs,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Seed fetches the upstream collection and swaps it in.
func (s *Seeder) Seed(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.upstreamURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create upstream request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upstream response: %w", err)
	}

	records, err := decodeUpstream(body)
	if err != nil {
		return err
	}

	jobs := make([]models.Job, 0, len(records))
	for _, rec := range records {
		job := mapJob(rec)
		if job.ID == "" {
			continue
		}
		jobs = append(jobs, job)
	}

	if err := s.jobs.ReplaceJobs(ctx, jobs); err != nil {
		return fmt.Errorf("failed to store seeded jobs: %w", err)
	}
	s.logger.Info("jobs seeded", "count", len(jobs))
	return nil
}

// decodeUpstream accepts both response shapes the upstream has used: a bare
// array and an array nested under "data".
func decodeUpstream(body []byte) ([]map[string]any, error) {
	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		return envelope.Data, nil
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return records, nil
}

func mapJob(rec map[string]any) models.Job {
	return models.Job{
		ID:          stringField(rec, "id", ""),
		Title:       stringField(rec, "title", defaultTitle),
		Company:     stringField(rec, "company", defaultCompany),
		Location:    stringField(rec, "location", defaultLocation),
		Description: stringField(rec, "description", defaultDescription),
		Category:    stringField(rec, "category", defaultCategory),
		Salary:      stringField(rec, "salary", defaultSalary),
		Image:       stringField(rec, "image", defaultImage),
	}
}

// stringField stringifies the upstream value; ids in particular arrive as
// either strings or numbers.
func stringField(rec map[string]any, key, fallback string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return fallback
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return fallback
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
