package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entsync/entsync/internal/client/session"
	"github.com/entsync/entsync/internal/validation"
	"github.com/entsync/entsync/pkg/api"
)

// Signup registers a new account.
func (a *App) Signup(ctx context.Context) error {
	username, err := readInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	if err := validation.ValidateUsername(username); err != nil {
		return err
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	resp, err := a.gateway.Signup(ctx, api.SignupRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}

	fmt.Printf("Account %q created. Run 'entsync login' to log in.\n", resp.Username)
	return nil
}

// Login authenticates against the server and stores the session locally.
func (a *App) Login(ctx context.Context) error {
	username, err := readInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	resp, err := a.gateway.Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := a.sessions.Save(ctx, &session.Session{Username: resp.Username, Token: resp.Token}); err != nil {
		return err
	}
	a.gateway.SetAuthToken(resp.Token)

	fmt.Printf("Logged in as %s\n", resp.Username)
	return nil
}

// Logout forgets the stored session. Local data stays on disk.
func (a *App) Logout(ctx context.Context) error {
	if err := a.sessions.Clear(ctx); err != nil {
		return err
	}
	a.gateway.SetAuthToken("")
	fmt.Println("Logged out")
	return nil
}

// Status prints the session and sync state.
func (a *App) Status(ctx context.Context) error {
	sess, err := a.sessions.Load(ctx)
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		fmt.Println("Session:     not logged in")
	case err != nil:
		return err
	default:
		fmt.Printf("Session:     logged in as %s\n", sess.Username)
	}

	pending, err := a.engine.PendingCount(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Collection:  %s\n", a.kind)
	fmt.Printf("Sync state:  %s\n", a.engine.State())
	fmt.Printf("Pending:     %d write(s)\n", pending)
	if ts := a.engine.LastSyncedAt(); ts > 0 {
		fmt.Printf("Last sync:   %s\n", time.UnixMilli(ts).Format(time.RFC3339))
	} else {
		fmt.Println("Last sync:   never")
	}
	return nil
}
