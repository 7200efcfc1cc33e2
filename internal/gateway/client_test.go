package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsync/entsync/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, testLogger(), WithBackoff(time.Millisecond))
	return client, srv
}

func TestClient_FetchAll(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/entities/expenses", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"e1","updatedAt":100,"amount":"5.00"}]`))
	}))

	entities, err := client.FetchAll(context.Background(), "/api/entities/expenses")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "e1", entities[0].ID)
	assert.Equal(t, int64(100), entities[0].UpdatedAt)
}

func TestClient_FetchAll_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))

	_, err := client.FetchAll(context.Background(), "/api/entities/expenses")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "two retries after the first attempt")
}

func TestClient_FetchAll_TransientExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	_, err := client.FetchAll(context.Background(), "/api/entities/expenses")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), calls.Load(), "three attempts total")
}

func TestClient_FetchAll_FatalNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"unknown kind"}`))
	}))

	_, err := client.FetchAll(context.Background(), "/api/entities/nope")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "unknown kind")
	assert.Equal(t, int32(1), calls.Load(), "fatal errors are never retried")
}

func TestClient_Timeout_IsTransient(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	client.timeout = 50 * time.Millisecond
	client.maxRetries = 0

	_, err := client.FetchAll(context.Background(), "/api/entities/expenses")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClient_Push_Create(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/entities/expenses", r.URL.Path)

		var e models.Entity
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		e.ID = "srv-1" // server assigns its own id
		w.WriteHeader(http.StatusCreated)
		require.NoError(t, json.NewEncoder(w).Encode(&e))
	}))

	local, err := models.NewEntity("loc-abc", 100, map[string]any{"amount": "12.50"})
	require.NoError(t, err)

	confirmed, err := client.Push(context.Background(), "/api/entities/expenses", local, models.OpCreate)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", confirmed.ID)

	var amount string
	require.NoError(t, confirmed.Field("amount", &amount))
	assert.Equal(t, "12.50", amount)
}

func TestClient_Push_Update(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/entities/expenses/srv-1", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))

	e, err := models.NewEntity("srv-1", 200, map[string]any{"amount": "6.00"})
	require.NoError(t, err)

	confirmed, err := client.Push(context.Background(), "/api/entities/expenses", e, models.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", confirmed.ID)
	assert.Equal(t, int64(200), confirmed.UpdatedAt)
}

func TestClient_Push_Delete404IsSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))

	e, err := models.NewEntity("gone", 1, nil)
	require.NoError(t, err)
	e.Deleted = true

	confirmed, err := client.Push(context.Background(), "/api/entities/expenses", e, models.OpDelete)
	require.NoError(t, err, "deleting something already gone is a success")
	assert.Equal(t, "gone", confirmed.ID)
}

func TestClient_Push_AuthHeader(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"e1","updatedAt":1}`))
	}))
	client.SetAuthToken("tok-123")

	e, err := models.NewEntity("e1", 1, nil)
	require.NoError(t, err)
	_, err = client.Push(context.Background(), "/api/entities/expenses", e, models.OpCreate)
	require.NoError(t, err)
}
