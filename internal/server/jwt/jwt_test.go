package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IssueVerify(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)

	token, err := m.Issue("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestManager_Verify_WrongSecret(t *testing.T) {
	token, err := NewManager([]byte("secret-a"), time.Hour).Issue("alice")
	require.NoError(t, err)

	_, err = NewManager([]byte("secret-b"), time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Verify_Expired(t *testing.T) {
	m := NewManager([]byte("test-secret"), -time.Minute)

	token, err := m.Issue("alice")
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Verify_Garbage(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)

	_, err := m.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewManager_DefaultTTL(t *testing.T) {
	m := NewManager([]byte("test-secret"), 0)
	assert.Equal(t, DefaultTTL, m.ttl)
}
