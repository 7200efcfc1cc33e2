// Package kvstore defines the durable key-value adapter that backs every
// entity repository. Keys are plain strings namespaced by prefix, values are
// JSON blobs. Operations are atomic per key; there are no cross-key
// transactions.
package kvstore

import "context"

//go:generate moq -out kvstore_mock.go . Store

// Store is the persistence adapter contract.
type Store interface {
	// Put overwrites the value at key. Idempotent.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the stored value, or ErrKeyNotFound when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns all keys with the given prefix, sorted.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying storage.
	Close() error
}
