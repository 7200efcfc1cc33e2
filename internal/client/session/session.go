// Package session persists the client login state between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/entsync/entsync/internal/kvstore"
)

// storeKey is where the session lives in the local store.
const storeKey = "user"

// ErrNotLoggedIn indicates no stored session.
var ErrNotLoggedIn = errors.New("not logged in")

// Session is the persisted login state.
type Session struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Manager reads and writes the session in the local store.
type Manager struct {
	store kvstore.Store
}

// NewManager creates a session manager over the local store.
func NewManager(store kvstore.Store) *Manager {
	return &Manager{store: store}
}

// Save persists the session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.store.Put(ctx, storeKey, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns the stored session, or ErrNotLoggedIn.
func (m *Manager) Load(ctx context.Context) (*Session, error) {
	data, err := m.store.Get(ctx, storeKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Clear removes the stored session. Clearing an absent session is not an
// error.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, storeKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
