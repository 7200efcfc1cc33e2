// Package gateway wraps outbound HTTP calls to the remote REST API with a
// bounded per-call timeout, transient/fatal error classification and
// exponential-backoff retry for transient failures.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/entsync/entsync/internal/models"
	"github.com/entsync/entsync/pkg/api"
)

const (
	defaultTimeout = 10 * time.Second
	defaultBackoff = 500 * time.Millisecond

	// Two retries after the first attempt: three attempts total.
	defaultMaxRetries = 2
)

// Client is the remote sync gateway.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	authToken  string
	timeout    time.Duration
	backoff    time.Duration
	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBackoff sets the base backoff between retries. Tests shorten it.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a gateway talking to baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		logger:     logger,
		timeout:    defaultTimeout,
		backoff:    defaultBackoff,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = &http.Client{Timeout: c.timeout}
	return c
}

// SetAuthToken attaches a bearer token to subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

// FetchAll retrieves the full remote entity list for one kind.
func (c *Client) FetchAll(ctx context.Context, endpoint string) ([]*models.Entity, error) {
	var entities []*models.Entity
	err := c.withRetry(ctx, func(ctx context.Context) error {
		entities = nil
		return c.do(ctx, http.MethodGet, endpoint, nil, &entities)
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// Push replays one local mutation against the remote endpoint and returns the
// server-confirmed entity. For deletes a remote 404 counts as success
// (idempotent delete semantics) and the local tombstone is returned.
func (c *Client) Push(ctx context.Context, endpoint string, entity *models.Entity, op models.Op) (*models.Entity, error) {
	var (
		method string
		path   string
		body   any
	)
	switch op {
	case models.OpCreate:
		method, path, body = http.MethodPost, endpoint, entity
	case models.OpUpdate:
		method, path, body = http.MethodPut, endpoint+"/"+entity.ID, entity
	case models.OpDelete:
		method, path = http.MethodDelete, endpoint+"/"+entity.ID
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}

	var confirmed *models.Entity
	err := c.withRetry(ctx, func(ctx context.Context) error {
		confirmed = nil
		if op == models.OpDelete {
			err := c.do(ctx, method, path, nil, nil)
			var fe *FatalError
			if errors.As(err, &fe) && fe.Status == http.StatusNotFound {
				return nil // already gone remotely
			}
			return err
		}
		confirmed = &models.Entity{}
		return c.do(ctx, method, path, body, confirmed)
	})
	if err != nil {
		return nil, err
	}
	if confirmed == nil {
		confirmed = entity.Clone()
	}
	return confirmed, nil
}

// Signup registers a new account on the remote server.
func (c *Client) Signup(ctx context.Context, req api.SignupRequest) (*api.SignupResponse, error) {
	var resp api.SignupResponse
	if err := c.do(ctx, http.MethodPost, "/api/signup", req, &resp); err != nil {
		return nil, fmt.Errorf("signup request failed: %w", err)
	}
	return &resp, nil
}

// Login authenticates and returns the profile plus an access token.
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// UpdateUser applies a partial profile update.
func (c *Client) UpdateUser(ctx context.Context, username string, req api.UpdateUserRequest) (*api.UserProfile, error) {
	var resp api.UserProfile
	if err := c.do(ctx, http.MethodPut, "/api/user/"+username, req, &resp); err != nil {
		return nil, fmt.Errorf("update user request failed: %w", err)
	}
	return &resp, nil
}

// withRetry runs fn with exponential backoff, retrying transient failures
// only. Fatal errors surface immediately.
func (c *Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			c.logger.Debug("transient gateway failure, will retry", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// do performs one HTTP round trip under the per-call timeout and classifies
// the outcome.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network unreachable, connection refused, deadline exceeded.
		return &TransientError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("server error (%d): %s", resp.StatusCode, serverMessage(respBody))}
	case resp.StatusCode >= 400:
		return &FatalError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("request rejected: %s", serverMessage(respBody)),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &FatalError{
				Status: resp.StatusCode,
				Err:    fmt.Errorf("failed to decode response: %w", err),
			}
		}
	}
	return nil
}

// serverMessage extracts the human-readable message from an error body,
// falling back to the raw body.
func serverMessage(body []byte) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return string(body)
}
