package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsync/entsync/internal/kvstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ent/expenses", []byte(`[{"id":"1"}]`)))

	got, err := store.Get(ctx, "ent/expenses")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"id":"1"}]`), got)
}

func TestStore_Put_Overwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("old")))
	require.NoError(t, store.Put(ctx, "k", []byte("new")))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestStore_Get_Absent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestStore_ListKeys_Prefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, kvstore.EntityKey("expenses"), []byte("[]")))
	require.NoError(t, store.Put(ctx, kvstore.EntityKey("bookings"), []byte("[]")))
	require.NoError(t, store.Put(ctx, kvstore.SyncKey("expenses"), []byte("{}")))

	keys, err := store.ListKeys(ctx, "ent/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ent/bookings", "ent/expenses"}, keys)

	keys, err = store.ListKeys(ctx, "sync/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sync/expenses"}, keys)
}

func TestStore_Reopen_Durable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", []byte("survives")))
	require.NoError(t, store.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()

	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), got)
}

func TestStore_Closed(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	ctx := context.Background()
	assert.ErrorIs(t, store.Put(ctx, "k", nil), kvstore.ErrStoreClosed)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrStoreClosed)
	_, err = store.ListKeys(ctx, "")
	assert.ErrorIs(t, err, kvstore.ErrStoreClosed)
}
