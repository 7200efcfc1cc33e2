// Package memory implements the key-value persistence adapter in process
// memory. It is used by tests and as a throwaway store when no database file
// is wanted.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/entsync/entsync/internal/kvstore"
)

// Store is an in-memory persistence adapter.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool

	// FailNextPut/FailNextGet force the next call to return the given error.
	// Lets tests simulate local storage failures (disk full, permission
	// denied, corrupt read).
	failMu      sync.Mutex
	failNextPut error
	failNextGet error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// FailNextPut makes the next Put call fail with err.
func (s *Store) FailNextPut(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failNextPut = err
}

// FailNextGet makes the next Get call fail with err.
func (s *Store) FailNextGet(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failNextGet = err
}

// Put overwrites the value at key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.failMu.Lock()
	if err := s.failNextPut; err != nil {
		s.failNextPut = nil
		s.failMu.Unlock()
		return err
	}
	s.failMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kvstore.ErrStoreClosed
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.data[key] = buf
	return nil
}

// Get returns the value stored at key, or kvstore.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.failMu.Lock()
	if err := s.failNextGet; err != nil {
		s.failNextGet = nil
		s.failMu.Unlock()
		return nil, err
	}
	s.failMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kvstore.ErrStoreClosed
	}
	value, ok := s.data[key]
	if !ok {
		return nil, kvstore.ErrKeyNotFound
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

// Delete removes the key. Deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kvstore.ErrStoreClosed
	}
	delete(s.data, key)
	return nil
}

// ListKeys returns all keys with the given prefix in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kvstore.ErrStoreClosed
	}
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
