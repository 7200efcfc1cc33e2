package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/internal/server/storage"
)

// Reseeder re-fetches the job collection from upstream. Implemented by the
// seed package.
type Reseeder interface {
	Seed(ctx context.Context) error
}

// JobsHandler serves the seeded job collection.
type JobsHandler struct {
	logger     *slog.Logger
	jobStorage storage.JobStorage
	seeder     Reseeder
}

// NewJobsHandler creates the jobs handler. seeder may be nil when re-seeding
// on empty reads is disabled.
func NewJobsHandler(logger *slog.Logger, jobStorage storage.JobStorage, seeder Reseeder) *JobsHandler {
	return &JobsHandler{logger: logger, jobStorage: jobStorage, seeder: seeder}
}

// List handles GET /api/jobs. An empty collection triggers one re-seed
// attempt before responding.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.jobStorage.ListJobs(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list jobs", slog.Any("error", err))
		sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if len(jobs) == 0 && h.seeder != nil {
		h.logger.InfoContext(ctx, "job collection empty, re-seeding from upstream")
		if err := h.seeder.Seed(ctx); err != nil {
			// Upstream being down is not fatal; serve the empty list.
			h.logger.WarnContext(ctx, "re-seed failed", slog.Any("error", err))
		} else if jobs, err = h.jobStorage.ListJobs(ctx); err != nil {
			h.logger.ErrorContext(ctx, "failed to list jobs after re-seed", slog.Any("error", err))
			sendError(h.logger, w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	if jobs == nil {
		jobs = []models.Job{}
	}

	sendJSON(h.logger, w, jobs, http.StatusOK)
}
