package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsync/entsync/internal/models"
)

type mockJobStorage struct {
	jobs    []models.Job
	listErr error
}

func (m *mockJobStorage) ReplaceJobs(_ context.Context, jobs []models.Job) error {
	m.jobs = jobs
	return nil
}

func (m *mockJobStorage) ListJobs(_ context.Context) ([]models.Job, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.jobs, nil
}

type mockSeeder struct {
	seedFn func(ctx context.Context) error
	calls  int
}

func (m *mockSeeder) Seed(ctx context.Context) error {
	m.calls++
	if m.seedFn != nil {
		return m.seedFn(ctx)
	}
	return nil
}

func TestJobsHandler_List(t *testing.T) {
	jobs := &mockJobStorage{jobs: []models.Job{
		{ID: "1", Title: "Go Developer", Company: "Acme"},
		{ID: "2", Title: "SRE", Company: "Globex"},
	}}
	seeder := &mockSeeder{}
	h := NewJobsHandler(testLogger(), jobs, seeder)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp []models.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, "Go Developer", resp[0].Title)
	// A non-empty collection must not trigger a re-seed.
	assert.Zero(t, seeder.calls)
}

func TestJobsHandler_List_ReseedsWhenEmpty(t *testing.T) {
	jobs := &mockJobStorage{}
	seeder := &mockSeeder{seedFn: func(ctx context.Context) error {
		return jobs.ReplaceJobs(ctx, []models.Job{{ID: "1", Title: "Seeded"}})
	}}
	h := NewJobsHandler(testLogger(), jobs, seeder)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, seeder.calls)

	var resp []models.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "Seeded", resp[0].Title)
}

func TestJobsHandler_List_SeedFailureServesEmptyList(t *testing.T) {
	seeder := &mockSeeder{seedFn: func(context.Context) error {
		return errors.New("upstream unreachable")
	}}
	h := NewJobsHandler(testLogger(), &mockJobStorage{}, seeder)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestJobsHandler_List_StorageError(t *testing.T) {
	jobs := &mockJobStorage{listErr: errors.New("db gone")}
	h := NewJobsHandler(testLogger(), jobs, nil)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
