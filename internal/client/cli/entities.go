package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entsync/entsync/internal/repo"
	"github.com/entsync/entsync/internal/validation"
)

// Add creates a record from field=value arguments. Without arguments the
// fields are prompted interactively. An "amount" field is normalized to a
// two-decimal string.
func (a *App) Add(ctx context.Context, args []string) error {
	payload, err := parseFields(args)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		if payload, err = promptFields(); err != nil {
			return err
		}
	}
	if len(payload) == 0 {
		return errors.New("nothing to add")
	}

	if raw, ok := payload["amount"]; ok {
		amount, err := validation.ParseAmount(fmt.Sprint(raw))
		if err != nil {
			return err
		}
		payload["amount"] = amount
	}

	entity, err := a.repo.Create(ctx, payload)
	if err != nil {
		return err
	}

	fmt.Printf("Added %s\n", entity.ID)
	return nil
}

// List prints the collection, newest first.
func (a *App) List(ctx context.Context) error {
	entities, err := a.repo.List(ctx)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		fmt.Printf("No records in %q\n", a.kind)
		return nil
	}

	for _, e := range entities {
		fmt.Printf("%s  %s  %s\n",
			e.ID,
			time.UnixMilli(e.UpdatedAt).Format("2006-01-02 15:04"),
			summarizePayload(e.Payload))
	}
	return nil
}

// Get prints one record as indented JSON.
func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: entsync get <id>")
	}

	entity, err := a.repo.Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, repo.ErrEntityNotFound) {
			return fmt.Errorf("record %q not found", args[0])
		}
		return err
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Delete removes one record.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: entsync delete <id>")
	}

	if err := a.repo.Delete(ctx, args[0]); err != nil {
		// Already gone is the outcome the user asked for.
		if errors.Is(err, repo.ErrEntityNotFound) {
			fmt.Printf("Record %s is already deleted\n", args[0])
			return nil
		}
		return err
	}

	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

// Sync runs one synchronization cycle and prints the outcome.
func (a *App) Sync(ctx context.Context) error {
	result, err := a.engine.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Pulled %d, merged %d, replayed %d", result.Pulled, result.Merged, result.Replayed)
	if result.Dropped > 0 {
		fmt.Printf(", dropped %d rejected write(s)", result.Dropped)
	}
	fmt.Println()
	return nil
}

func parseFields(args []string) (map[string]any, error) {
	payload := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		payload[key] = value
	}
	return payload, nil
}

// promptFields reads field=value lines until an empty line.
func promptFields() (map[string]any, error) {
	fmt.Println("Enter fields as field=value, empty line to finish:")
	payload := make(map[string]any)
	for {
		line, err := readInput("> ")
		if err != nil {
			return nil, err
		}
		if line == "" {
			return payload, nil
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			fmt.Println("expected field=value")
			continue
		}
		payload[key] = value
	}
}

func summarizePayload(payload map[string]json.RawMessage) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Trim(string(payload[k]), `"`))
	}
	return strings.Join(parts, " ")
}
