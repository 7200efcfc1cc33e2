package kvstore

import "errors"

// Common persistence adapter errors.
var (
	// ErrKeyNotFound indicates that no value is stored under the key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed indicates that the store has been closed.
	ErrStoreClosed = errors.New("store is closed")
)

// Key layout for the local store. One entities key and one sync-state key per
// entity kind; kinds never share keys.
const (
	entityPrefix = "ent/"
	syncPrefix   = "sync/"
)

// EntityKey returns the storage key holding a kind's entity list.
func EntityKey(kind string) string { return entityPrefix + kind }

// SyncKey returns the storage key holding a kind's sync state.
func SyncKey(kind string) string { return syncPrefix + kind }
