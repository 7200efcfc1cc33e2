// Package syncer implements the reconciliation engine: a per-kind state
// machine (Idle -> Syncing -> Idle | Degraded) that merges remote entities
// into the local repository under last-write-wins and replays queued pending
// writes in order.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/entsync/entsync/internal/gateway"
	"github.com/entsync/entsync/internal/kvstore"
	"github.com/entsync/entsync/internal/models"
)

// State of the engine for one entity kind.
type State string

// Engine states. The state machine doubles as a mutex: no two sync cycles
// for the same kind ever run concurrently.
const (
	StateIdle     State = "idle"
	StateSyncing  State = "syncing"
	StateDegraded State = "degraded"
)

// ErrSyncInFlight is returned when a cycle is requested while one is already
// running for the kind.
var ErrSyncInFlight = errors.New("sync already in flight")

const defaultInterval = 5 * time.Minute

// Repository is the engine-facing slice of the entity repository.
type Repository interface {
	Kind() string
	MergeRemote(ctx context.Context, remote []*models.Entity) (int, error)
	ConfirmCreate(ctx context.Context, provisionalID string, confirmed *models.Entity) (*models.Entity, error)
}

// Gateway is the engine-facing slice of the remote sync gateway.
type Gateway interface {
	FetchAll(ctx context.Context, endpoint string) ([]*models.Entity, error)
	Push(ctx context.Context, endpoint string, entity *models.Entity, op models.Op) (*models.Entity, error)
}

// Result summarizes one sync cycle.
type Result struct {
	Pulled   int // entities received from the server
	Merged   int // entities that changed locally after the merge
	Replayed int // pending writes confirmed by the server
	Dropped  int // pending writes rejected with a fatal error
}

// Engine is the sole mutator of a kind's SyncState.
type Engine struct {
	repo     Repository
	gw       Gateway
	store    kvstore.Store
	logger   *slog.Logger
	now      func() time.Time
	trigger  chan struct{}
	kind     string
	endpoint string
	interval time.Duration

	mu           sync.Mutex
	state        State
	pending      []models.PendingWrite
	seq          uint64 // next queue identity, past the highest persisted one
	lastSyncedAt int64
	loaded       bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval overrides the periodic sync trigger (default 5m).
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine for one kind. endpoint is the remote collection path
// (e.g. "/api/entities/expenses"); repo and store are the same instances the
// repository uses so local state stays in one file.
func New(repo Repository, gw Gateway, store kvstore.Store, endpoint string, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		kind:     repo.Kind(),
		endpoint: endpoint,
		repo:     repo,
		gw:       gw,
		store:    store,
		logger:   logger.With("kind", repo.Kind()),
		now:      time.Now,
		interval: defaultInterval,
		state:    StateIdle,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current state of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastSyncedAt returns the timestamp of the last fully successful cycle,
// 0 when the kind has never synced.
func (e *Engine) LastSyncedAt() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncedAt
}

// PendingCount returns how many writes await replay.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadLocked(ctx); err != nil {
		return 0, err
	}
	return len(e.pending), nil
}

// EnqueueWrite records a locally committed mutation for replay and signals
// the sync loop. It never touches the network on the caller's goroutine; the
// repository calls this synchronously from its write path.
func (e *Engine) EnqueueWrite(ctx context.Context, pw models.PendingWrite) {
	e.mu.Lock()
	loadErr := e.loadLocked(ctx)
	if loadErr != nil {
		e.logger.Warn("failed to load sync state, queueing in memory only", "error", loadErr)
	}
	pw.Seq = e.nextSeqLocked()
	e.supersedeLocked(pw)
	// Never persist over a queue we could not read: the entity itself is
	// already durable in the repository's storage key, and the next
	// successful load picks the in-memory entries back up via Sync.
	if loadErr == nil {
		if err := e.persistLocked(ctx); err != nil {
			e.logger.Warn("failed to persist pending queue", "error", err)
		}
	}
	e.mu.Unlock()

	e.RequestRefresh()
}

// nextSeqLocked hands out queue identities. Caller holds e.mu.
func (e *Engine) nextSeqLocked() uint64 {
	s := e.seq
	e.seq++
	return s
}

// supersedeLocked merges a new pending write into the queue. A newer write
// for the same id replaces the older one in place, preserving queue order;
// a delete of a never-pushed create drops both. Caller holds e.mu.
func (e *Engine) supersedeLocked(pw models.PendingWrite) {
	for i, existing := range e.pending {
		if existing.Entity.ID != pw.Entity.ID {
			continue
		}
		switch {
		case existing.Op == models.OpCreate && pw.Op == models.OpDelete:
			// The server never saw this entity; nothing to replay.
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
		case existing.Op == models.OpCreate:
			// Still a create from the server's point of view, with the
			// newer snapshot and the newer write's queue identity.
			e.pending[i] = models.PendingWrite{Op: models.OpCreate, Entity: pw.Entity, QueuedAt: pw.QueuedAt, Seq: pw.Seq}
		default:
			e.pending[i] = pw
		}
		return
	}
	e.pending = append(e.pending, pw)
}

// RequestRefresh signals the background loop without blocking. Used for
// stale-while-revalidate reads; a no-op when no loop is running.
func (e *Engine) RequestRefresh() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start runs the background sync loop: one cycle per trigger signal and one
// per interval tick, until ctx is canceled. Cancelling the loop never touches
// the pending queue, which survives independent of any caller's lifetime.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.trigger:
		case <-ticker.C:
		}
		if _, err := e.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
			e.logger.Warn("sync cycle failed", "error", err)
		}
	}
}

// Sync runs one full reconciliation cycle: fetch the remote list, merge it
// under last-write-wins, then replay pending writes in queue order. Local
// reads and writes keep working regardless of the outcome.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.state == StateSyncing {
		e.mu.Unlock()
		return nil, ErrSyncInFlight
	}
	if err := e.loadLocked(ctx); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.state = StateSyncing
	e.mu.Unlock()

	result, err := e.cycle(ctx)

	e.mu.Lock()
	if err != nil {
		e.state = StateDegraded
	} else {
		e.state = StateIdle
		e.lastSyncedAt = e.now().UnixMilli()
	}
	if perr := e.persistLocked(ctx); perr != nil {
		e.logger.Warn("failed to persist sync state", "error", perr)
	}
	e.mu.Unlock()

	if err != nil {
		return result, err
	}
	e.logger.Info("sync cycle complete",
		"pulled", result.Pulled,
		"merged", result.Merged,
		"replayed", result.Replayed,
		"dropped", result.Dropped,
	)
	return result, nil
}

// cycle does the network work of one sync. The engine is in StateSyncing for
// the whole call, which keeps cycles for the kind serialized.
func (e *Engine) cycle(ctx context.Context) (*Result, error) {
	result := &Result{}

	remote, err := e.gw.FetchAll(ctx, e.endpoint)
	if err != nil {
		if gateway.IsFatal(err) {
			e.logger.Error("remote fetch rejected", "error", err)
			return result, err
		}
		return result, fmt.Errorf("remote fetch failed: %w", err)
	}
	result.Pulled = len(remote)

	merged, err := e.repo.MergeRemote(ctx, remote)
	if err != nil {
		return result, fmt.Errorf("merge failed: %w", err)
	}
	result.Merged = merged

	if err := e.replay(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// replay pushes queued writes in creation order. A fatal rejection drops just
// that write (logged for manual review) and continues; a transient failure
// stops the cycle with the remainder of the queue intact.
func (e *Engine) replay(ctx context.Context, result *Result) error {
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return nil
		}
		pw := e.pending[0]
		e.mu.Unlock()

		confirmed, err := e.gw.Push(ctx, e.endpoint, pw.Entity, pw.Op)
		switch {
		case err == nil:
			if err := e.applyConfirmed(ctx, pw, confirmed); err != nil {
				return fmt.Errorf("failed to apply confirmed write: %w", err)
			}
			result.Replayed++
		case gateway.IsFatal(err):
			// Not retryable; dropping the write is deliberate and must be
			// visible in the logs, never silent.
			e.logger.Warn("dropping pending write after fatal rejection",
				"op", pw.Op,
				"entity_id", pw.Entity.ID,
				"error", err,
			)
			result.Dropped++
		default:
			return fmt.Errorf("replay of %s %s failed: %w", pw.Op, pw.Entity.ID, err)
		}

		e.dequeue(ctx, pw)
	}
}

// applyConfirmed folds the server's confirmation back into the repository.
func (e *Engine) applyConfirmed(ctx context.Context, pw models.PendingWrite, confirmed *models.Entity) error {
	switch pw.Op {
	case models.OpCreate:
		if confirmed.ID != pw.Entity.ID {
			final, err := e.repo.ConfirmCreate(ctx, pw.Entity.ID, confirmed)
			if err != nil {
				return err
			}
			e.adoptServerID(ctx, pw, final)
			return nil
		}
		_, err := e.repo.MergeRemote(ctx, []*models.Entity{confirmed})
		return err
	case models.OpUpdate:
		_, err := e.repo.MergeRemote(ctx, []*models.Entity{confirmed})
		return err
	case models.OpDelete:
		return nil // locally tombstoned already
	}
	return nil
}

// adoptServerID rewrites queue entries still carrying the provisional id of a
// confirmed create. Such an entry is a write that superseded the create while
// its push was in flight; it replays under the server id, and a create becomes
// an update because the server now knows the entity. A delete that emptied the
// queue mid-flight is re-queued so the server-side copy does not outlive the
// local tombstone.
func (e *Engine) adoptServerID(ctx context.Context, pw models.PendingWrite, final *models.Entity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rewritten := false
	for i := range e.pending {
		entry := e.pending[i]
		if entry.Seq == pw.Seq || entry.Entity.ID != pw.Entity.ID {
			continue
		}
		op := entry.Op
		if op == models.OpCreate {
			op = models.OpUpdate
		}
		e.pending[i] = models.PendingWrite{
			Op:       op,
			Entity:   final.Clone(),
			QueuedAt: entry.QueuedAt,
			Seq:      entry.Seq,
		}
		rewritten = true
	}

	if !rewritten && final.Deleted {
		e.pending = append(e.pending, models.PendingWrite{
			Op:       models.OpDelete,
			Entity:   final.Clone(),
			QueuedAt: e.now().UnixMilli(),
			Seq:      e.nextSeqLocked(),
		})
	}

	if err := e.persistLocked(ctx); err != nil {
		e.logger.Warn("failed to persist pending queue", "error", err)
	}
}

// dequeue removes the head write unless a newer write for the same id
// superseded it while the push was in flight. Queue entries are identified by
// sequence number, never by id or timestamp: a superseding write keeps the
// slot but carries a fresh number.
func (e *Engine) dequeue(ctx context.Context, pw models.PendingWrite) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) > 0 && e.pending[0].Seq == pw.Seq {
		e.pending = e.pending[1:]
	}
	if err := e.persistLocked(ctx); err != nil {
		e.logger.Warn("failed to persist pending queue", "error", err)
	}
}

// loadLocked reads the persisted SyncState once. Caller holds e.mu.
func (e *Engine) loadLocked(ctx context.Context) error {
	if e.loaded {
		return nil
	}

	data, err := e.store.Get(ctx, kvstore.SyncKey(e.kind))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		e.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}

	var state models.SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to decode sync state: %w", err)
	}

	// Writes queued in memory while the store was unreadable come after the
	// persisted ones, with fresh sequence numbers.
	carried := e.pending
	e.pending = state.Pending
	for _, pw := range state.Pending {
		if pw.Seq >= e.seq {
			e.seq = pw.Seq + 1
		}
	}
	for _, pw := range carried {
		pw.Seq = e.nextSeqLocked()
		e.supersedeLocked(pw)
	}

	e.lastSyncedAt = state.LastSyncedAt
	e.loaded = true
	return nil
}

// persistLocked writes the SyncState next to the kind's entities. Caller
// holds e.mu.
func (e *Engine) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(&models.SyncState{
		Pending:      e.pending,
		LastSyncedAt: e.lastSyncedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sync state: %w", err)
	}
	if err := e.store.Put(ctx, kvstore.SyncKey(e.kind), data); err != nil {
		return fmt.Errorf("failed to persist sync state: %w", err)
	}
	return nil
}
