// Package cli implements the interactive client commands.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/entsync/entsync/internal/client/session"
	"github.com/entsync/entsync/internal/gateway"
	"github.com/entsync/entsync/internal/repo"
	"github.com/entsync/entsync/internal/syncer"
)

// App holds the wired client services a command needs.
type App struct {
	gateway  *gateway.Client
	repo     *repo.Repository
	engine   *syncer.Engine
	sessions *session.Manager
	kind     string
}

// NewApp creates the command dispatcher over already-wired services.
func NewApp(gw *gateway.Client, r *repo.Repository, engine *syncer.Engine, sessions *session.Manager, kind string) *App {
	return &App{
		gateway:  gw,
		repo:     r,
		engine:   engine,
		sessions: sessions,
		kind:     kind,
	}
}

// PrintUsage writes the command reference to stdout.
func PrintUsage() {
	fmt.Println("entsync client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  entsync [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version        Show version information")
	fmt.Println("  --server URL     Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH        Path to local database (default: entsync-client.db)")
	fmt.Println("  --kind NAME      Entity collection to work with (default: expenses)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  signup                  Register a new account")
	fmt.Println("  login                   Log in to the server")
	fmt.Println("  logout                  Forget the stored session")
	fmt.Println("  status                  Show session and sync state")
	fmt.Println("  add [field=value ...]   Add a record to the collection")
	fmt.Println("  list                    List records, newest first")
	fmt.Println("  get <id>                Show one record")
	fmt.Println("  delete <id>             Delete a record")
	fmt.Println("  sync                    Synchronize with the server now")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  entsync signup")
	fmt.Println("  entsync add amount=12.50 category=food note=lunch")
	fmt.Println("  entsync --kind bookings list")
	fmt.Println("  entsync sync")
}

// readInput reads one trimmed line from stdin.
func readInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readPassword reads a password without echoing it.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}
