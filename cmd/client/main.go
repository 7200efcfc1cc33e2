package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/entsync/entsync/internal/client/cli"
	"github.com/entsync/entsync/internal/client/session"
	"github.com/entsync/entsync/internal/gateway"
	"github.com/entsync/entsync/internal/kvstore/boltdb"
	"github.com/entsync/entsync/internal/repo"
	"github.com/entsync/entsync/internal/syncer"
)

// Version information set via ldflags during build.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "entsync-client.db", "Path to local database")
	kind := flag.String("kind", "expenses", "Entity collection to work with")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}
	command := args[0]

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	ctx := context.Background()

	store, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	gw := gateway.NewClient(*serverURL, logger)
	sessions := session.NewManager(store)

	// Restore the auth token from a previous login, if any.
	if sess, err := sessions.Load(ctx); err == nil {
		gw.SetAuthToken(sess.Token)
	} else if !errors.Is(err, session.ErrNotLoggedIn) {
		fmt.Fprintf(os.Stderr, "Failed to load session: %v\n", err)
		os.Exit(1)
	}

	repository := repo.New(*kind, store, logger)
	engine := syncer.New(repository, gw, store, "/api/entities/"+*kind, logger)
	repository.AttachRemote(engine)

	app := cli.NewApp(gw, repository, engine, sessions, *kind)

	if err := run(ctx, app, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *cli.App, command string, args []string) error {
	switch command {
	case "signup":
		return app.Signup(ctx)
	case "login":
		return app.Login(ctx)
	case "logout":
		return app.Logout(ctx)
	case "status":
		return app.Status(ctx)
	case "add":
		return app.Add(ctx, args)
	case "list":
		return app.List(ctx)
	case "get":
		return app.Get(ctx, args)
	case "delete":
		return app.Delete(ctx, args)
	case "sync":
		return app.Sync(ctx)
	default:
		cli.PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printVersion() {
	fmt.Println("entsync client")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
