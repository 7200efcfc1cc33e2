package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsync/entsync/internal/kvstore/memory"
	"github.com/entsync/entsync/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T, opts ...Option) (*Repository, *memory.Store) {
	t.Helper()
	store := memory.New()
	r := New("expenses", store, testLogger(), opts...)
	return r, store
}

func TestRepository_CreateGet(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	before := time.Now().UnixMilli()
	created, err := r.Create(ctx, map[string]any{"amount": "12.50", "category": "Food"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.GreaterOrEqual(t, created.UpdatedAt, before)

	got, err := r.Get(ctx, created.ID)
	require.NoError(t, err)

	var amount, category string
	require.NoError(t, got.Field("amount", &amount))
	require.NoError(t, got.Field("category", &category))
	assert.Equal(t, "12.50", amount)
	assert.Equal(t, "Food", category)
	assert.Equal(t, created.UpdatedAt, got.UpdatedAt)
}

func TestRepository_Get_NotFound(t *testing.T) {
	r, _ := newTestRepo(t)

	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestRepository_Update(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, map[string]any{"amount": "5.00", "note": "coffee"})
	require.NoError(t, err)

	updated, err := r.Update(ctx, created.ID, map[string]any{"amount": "6.00"})
	require.NoError(t, err)
	assert.Greater(t, updated.UpdatedAt, created.UpdatedAt, "updatedAt must bump on every write")

	var amount, note string
	require.NoError(t, updated.Field("amount", &amount))
	require.NoError(t, updated.Field("note", &note))
	assert.Equal(t, "6.00", amount)
	assert.Equal(t, "coffee", note, "unpatched fields survive")
}

func TestRepository_Update_NotFound(t *testing.T) {
	r, _ := newTestRepo(t)

	_, err := r.Update(context.Background(), "ghost", map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestRepository_Delete_Idempotent(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, map[string]any{"amount": "1.00"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, created.ID))

	// Second delete reports NotFound, which the UI treats as a no-op.
	assert.ErrorIs(t, r.Delete(ctx, created.ID), ErrEntityNotFound)

	_, err = r.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrEntityNotFound)

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_List_SortedNewestFirst(t *testing.T) {
	ts := int64(1000)
	r, _ := newTestRepo(t, WithClock(func() time.Time {
		ts += 1000
		return time.UnixMilli(ts)
	}))
	ctx := context.Background()

	first, err := r.Create(ctx, map[string]any{"n": 1})
	require.NoError(t, err)
	second, err := r.Create(ctx, map[string]any{"n": 2})
	require.NoError(t, err)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestRepository_PersistenceRoundTrip(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	r1 := New("expenses", store, testLogger())
	a, err := r1.Create(ctx, map[string]any{"amount": "3.00"})
	require.NoError(t, err)
	b, err := r1.Create(ctx, map[string]any{"amount": "4.00"})
	require.NoError(t, err)
	require.NoError(t, r1.Delete(ctx, b.ID))

	// A fresh repository over the same store sees the same set.
	r2 := New("expenses", store, testLogger())
	list, err := r2.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	// The tombstone also survives the reload.
	_, err = r2.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	snap, err := r2.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 2)
}

func TestRepository_StorageFailurePropagates(t *testing.T) {
	r, store := newTestRepo(t)
	ctx := context.Background()

	boom := errors.New("disk full")
	store.FailNextPut(boom)

	_, err := r.Create(ctx, map[string]any{"amount": "1.00"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// The failed write must not linger in the cache.
	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_Notifications_OrderAndCount(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		ops []models.Op
	)
	cancel := r.Subscribe(func(op models.Op, _ *models.Entity) {
		mu.Lock()
		ops = append(ops, op)
		mu.Unlock()
	})

	created, err := r.Create(ctx, map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = r.Update(ctx, created.ID, map[string]any{"n": 2})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, created.ID))

	mu.Lock()
	assert.Equal(t, []models.Op{models.OpCreate, models.OpUpdate, models.OpDelete}, ops)
	mu.Unlock()

	cancel()
	_, err = r.Create(ctx, map[string]any{"n": 3})
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, ops, 3, "unsubscribed listener must not fire")
	mu.Unlock()
}

func TestRepository_ConcurrentUpdates_LastWriteWins(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, map[string]any{"n": 0})
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := r.Update(ctx, created.ID, map[string]any{"n": n})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := r.Get(ctx, created.ID)
	require.NoError(t, err)

	// Timestamps are strictly increasing per id, so the cached entity must
	// carry the largest one handed out.
	assert.Greater(t, got.UpdatedAt, created.UpdatedAt)
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, got.UpdatedAt, snap[0].UpdatedAt)
}

func TestRepository_MergeRemote_LastWriteWins(t *testing.T) {
	r, _ := newTestRepo(t, WithClock(func() time.Time { return time.UnixMilli(100) }))
	ctx := context.Background()

	local, err := r.Create(ctx, map[string]any{"amount": "1.00", "id": "shared"})
	require.NoError(t, err)
	require.Equal(t, int64(100), local.UpdatedAt)

	newer, err := models.NewEntity("shared", 200, map[string]any{"amount": "2.00"})
	require.NoError(t, err)
	older, err := models.NewEntity("stale", 50, map[string]any{"amount": "0.50"})
	require.NoError(t, err)

	changed, err := r.MergeRemote(ctx, []*models.Entity{newer, older})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	got, err := r.Get(ctx, "shared")
	require.NoError(t, err)
	var amount string
	require.NoError(t, got.Field("amount", &amount))
	assert.Equal(t, "2.00", amount, "remote entity with larger updatedAt wins")
	assert.Equal(t, int64(200), got.UpdatedAt)
}

func TestRepository_MergeRemote_LocalNewerWins(t *testing.T) {
	r, _ := newTestRepo(t, WithClock(func() time.Time { return time.UnixMilli(300) }))
	ctx := context.Background()

	_, err := r.Create(ctx, map[string]any{"amount": "9.00", "id": "shared"})
	require.NoError(t, err)

	stale, err := models.NewEntity("shared", 100, map[string]any{"amount": "1.00"})
	require.NoError(t, err)

	changed, err := r.MergeRemote(ctx, []*models.Entity{stale})
	require.NoError(t, err)
	assert.Zero(t, changed)

	got, err := r.Get(ctx, "shared")
	require.NoError(t, err)
	var amount string
	require.NoError(t, got.Field("amount", &amount))
	assert.Equal(t, "9.00", amount)
}

func TestRepository_MergeRemote_TieRemoteWins(t *testing.T) {
	r, _ := newTestRepo(t, WithClock(func() time.Time { return time.UnixMilli(100) }))
	ctx := context.Background()

	_, err := r.Create(ctx, map[string]any{"amount": "local", "id": "shared"})
	require.NoError(t, err)

	remote, err := models.NewEntity("shared", 100, map[string]any{"amount": "remote"})
	require.NoError(t, err)

	changed, err := r.MergeRemote(ctx, []*models.Entity{remote})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got, err := r.Get(ctx, "shared")
	require.NoError(t, err)
	var amount string
	require.NoError(t, got.Field("amount", &amount))
	assert.Equal(t, "remote", amount, "server is the tie-break authority")
}

func TestRepository_MergeRemote_Tombstone(t *testing.T) {
	r, _ := newTestRepo(t, WithClock(func() time.Time { return time.UnixMilli(100) }))
	ctx := context.Background()

	_, err := r.Create(ctx, map[string]any{"id": "gone", "n": 1})
	require.NoError(t, err)

	tomb, err := models.NewEntity("gone", 200, nil)
	require.NoError(t, err)
	tomb.Deleted = true

	_, err = r.MergeRemote(ctx, []*models.Entity{tomb})
	require.NoError(t, err)

	_, err = r.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestRepository_ConfirmCreate_SwapsID(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, map[string]any{"amount": "12.50"})
	require.NoError(t, err)

	confirmed := created.Clone()
	confirmed.ID = "srv-1"
	final, err := r.ConfirmCreate(ctx, created.ID, confirmed)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", final.ID)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "srv-1", list[0].ID)

	_, err = r.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestRepository_ConfirmCreate_KeepsNewerLocalPayload(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, map[string]any{"amount": "1.00"})
	require.NoError(t, err)

	// A local update lands after the create snapshot went out.
	updated, err := r.Update(ctx, created.ID, map[string]any{"amount": "2.00"})
	require.NoError(t, err)

	// The server confirms the older snapshot under its own id.
	confirmed := created.Clone()
	confirmed.ID = "srv-1"
	final, err := r.ConfirmCreate(ctx, created.ID, confirmed)
	require.NoError(t, err)

	require.Equal(t, "srv-1", final.ID)
	var amount string
	require.NoError(t, final.Field("amount", &amount))
	assert.Equal(t, "2.00", amount, "the newer local payload survives the id swap")
	assert.Equal(t, updated.UpdatedAt, final.UpdatedAt)

	got, err := r.Get(ctx, "srv-1")
	require.NoError(t, err)
	require.NoError(t, got.Field("amount", &amount))
	assert.Equal(t, "2.00", amount)
}

type recordingRemote struct {
	mu       sync.Mutex
	writes   []models.PendingWrite
	refreshs int
}

func (f *recordingRemote) EnqueueWrite(_ context.Context, pw models.PendingWrite) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, pw)
}

func (f *recordingRemote) RequestRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs++
}

func TestRepository_RemoteHook(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	remote := &recordingRemote{}
	r.AttachRemote(remote)

	created, err := r.Create(ctx, map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = r.Update(ctx, created.ID, map[string]any{"n": 2})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, created.ID))

	remote.mu.Lock()
	defer remote.mu.Unlock()
	require.Len(t, remote.writes, 3)
	assert.Equal(t, models.OpCreate, remote.writes[0].Op)
	assert.Equal(t, models.OpUpdate, remote.writes[1].Op)
	assert.Equal(t, models.OpDelete, remote.writes[2].Op)
	assert.True(t, remote.writes[2].Entity.Deleted)
}

func TestRepository_List_ColdCacheRequestsRefresh(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	seed := New("expenses", store, testLogger())
	_, err := seed.Create(ctx, map[string]any{"n": 1})
	require.NoError(t, err)

	r := New("expenses", store, testLogger())
	remote := &recordingRemote{}
	r.AttachRemote(remote)

	for i := 0; i < 3; i++ {
		_, err = r.List(ctx)
		require.NoError(t, err)
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, 1, remote.refreshs, "only the cold read revalidates")
}

func TestRepository_KindsDoNotShareKeys(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	expenses := New("expenses", store, testLogger())
	bookings := New("bookings", store, testLogger())

	_, err := expenses.Create(ctx, map[string]any{"amount": "1.00"})
	require.NoError(t, err)

	list, err := bookings.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	keys, err := store.ListKeys(ctx, "ent/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ent/expenses"}, keys)
}

func TestRepository_CreateManyUniqueIDs(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		e, err := r.Create(ctx, map[string]any{"n": i})
		require.NoError(t, err)
		require.False(t, seen[e.ID], fmt.Sprintf("duplicate id %s", e.ID))
		seen[e.ID] = true
	}
}
