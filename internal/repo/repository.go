// Package repo implements the per-kind entity repository: typed collection
// CRUD over the persistence adapter with an in-memory cache, change
// notification, and a hook into the reconciliation engine for remote replay.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entsync/entsync/internal/kvstore"
	"github.com/entsync/entsync/internal/models"
)

// ErrEntityNotFound indicates that no live entity exists under the id.
var ErrEntityNotFound = errors.New("entity not found")

// Listener is invoked after every successful local mutation and after a
// reconciliation merges remote changes. Delivery order matches mutation
// order; a subscriber may observe more notifications than mutations, never
// fewer. A listener must not call mutating repository methods synchronously.
type Listener func(op models.Op, entity *models.Entity)

// Remote receives locally committed mutations for asynchronous replay and
// refresh requests for stale-while-revalidate reads. Implemented by the
// reconciliation engine; both methods must return quickly and never touch
// the network on the caller's goroutine.
type Remote interface {
	EnqueueWrite(ctx context.Context, pw models.PendingWrite)
	RequestRefresh()
}

// Repository owns the in-memory cache for one entity kind. The local store
// is the commit point: remote failures never fail a mutation, local storage
// failures do.
type Repository struct {
	store  kvstore.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	kind   string

	mu    sync.RWMutex
	cache map[string]*models.Entity // includes tombstones
	warm  bool

	// notifyMu serializes listener delivery so notification order matches
	// mutation order even when notifications run outside the cache lock.
	notifyMu sync.Mutex

	subMu     sync.Mutex
	listeners []Listener

	remoteMu sync.RWMutex
	remote   Remote
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDFunc overrides client-side id generation. Used in tests.
func WithIDFunc(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

// New creates a repository for one entity kind backed by the given store.
func New(kind string, store kvstore.Store, logger *slog.Logger, opts ...Option) *Repository {
	r := &Repository{
		kind:   kind,
		store:  store,
		logger: logger.With("kind", kind),
		now:    time.Now,
		newID:  func() string { return "loc-" + uuid.NewString() },
		cache:  make(map[string]*models.Entity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the entity kind this repository serves.
func (r *Repository) Kind() string { return r.kind }

// AttachRemote wires the reconciliation engine in. Before this is called the
// repository works purely locally.
func (r *Repository) AttachRemote(remote Remote) {
	r.remoteMu.Lock()
	defer r.remoteMu.Unlock()
	r.remote = remote
}

func (r *Repository) getRemote() Remote {
	r.remoteMu.RLock()
	defer r.remoteMu.RUnlock()
	return r.remote
}

// Subscribe registers a change listener and returns a function that removes
// it again (e.g. on screen unmount).
func (r *Repository) Subscribe(fn Listener) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.listeners = append(r.listeners, fn)
	idx := len(r.listeners) - 1
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		r.listeners[idx] = nil
	}
}

// List returns all live entities, newest first (updatedAt descending, id
// ascending on ties). A cold cache is loaded from the persistence adapter and
// a background refresh is requested; List never blocks on the network.
func (r *Repository) List(ctx context.Context) ([]*models.Entity, error) {
	r.mu.Lock()
	wasWarm := r.warm
	if err := r.ensureLoadedLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	entities := make([]*models.Entity, 0, len(r.cache))
	for _, e := range r.cache {
		if !e.Deleted {
			entities = append(entities, e.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].UpdatedAt != entities[j].UpdatedAt {
			return entities[i].UpdatedAt > entities[j].UpdatedAt
		}
		return entities[i].ID < entities[j].ID
	})

	// Stale-while-revalidate: serve what we have, refresh in the background.
	if !wasWarm {
		if remote := r.getRemote(); remote != nil {
			remote.RequestRefresh()
		}
	}

	return entities, nil
}

// Get returns a live entity by id, or ErrEntityNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*models.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	e, ok := r.cache[id]
	if !ok || e.Deleted {
		return nil, ErrEntityNotFound
	}
	return e.Clone(), nil
}

// Create commits a new entity locally and schedules remote replay. The id is
// client-generated unless the payload carries one. Local durability is the
// commit point: the call fails only on storage failure.
func (r *Repository) Create(ctx context.Context, payload map[string]any) (*models.Entity, error) {
	id := ""
	if v, ok := payload["id"].(string); ok {
		id = v
	}
	if id == "" {
		id = r.newID()
	}

	entity, err := models.NewEntity(id, 0, payload)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if err := r.ensureLoadedLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	entity.UpdatedAt = r.nextTimestampLocked(id)
	prev, hadPrev := r.cache[id]
	r.cache[id] = entity
	if err := r.persistLocked(ctx); err != nil {
		if hadPrev {
			r.cache[id] = prev
		} else {
			delete(r.cache, id)
		}
		r.mu.Unlock()
		return nil, err
	}

	result := entity.Clone()
	r.finishMutation(models.OpCreate, result)

	r.enqueue(ctx, models.OpCreate, result)
	return result, nil
}

// Update merges patch fields into an existing entity and bumps updatedAt.
// Returns ErrEntityNotFound when the id does not exist locally.
func (r *Repository) Update(ctx context.Context, id string, patch map[string]any) (*models.Entity, error) {
	r.mu.Lock()
	if err := r.ensureLoadedLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	existing, ok := r.cache[id]
	if !ok || existing.Deleted {
		r.mu.Unlock()
		return nil, ErrEntityNotFound
	}

	updated := existing.Clone()
	for k, v := range patch {
		if k == "id" || k == "updatedAt" || k == "deleted" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("failed to marshal patch field %q: %w", k, err)
		}
		updated.Payload[k] = raw
	}
	updated.UpdatedAt = r.nextTimestampLocked(id)

	r.cache[id] = updated
	if err := r.persistLocked(ctx); err != nil {
		r.cache[id] = existing
		r.mu.Unlock()
		return nil, err
	}

	result := updated.Clone()
	r.finishMutation(models.OpUpdate, result)

	r.enqueue(ctx, models.OpUpdate, result)
	return result, nil
}

// Delete tombstones the entity locally and queues a remote delete. A second
// delete of the same id returns ErrEntityNotFound, which callers treat as a
// benign no-op.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if err := r.ensureLoadedLocked(ctx); err != nil {
		r.mu.Unlock()
		return err
	}

	existing, ok := r.cache[id]
	if !ok || existing.Deleted {
		r.mu.Unlock()
		return ErrEntityNotFound
	}

	tombstone := existing.Clone()
	tombstone.Deleted = true
	tombstone.UpdatedAt = r.nextTimestampLocked(id)

	r.cache[id] = tombstone
	if err := r.persistLocked(ctx); err != nil {
		r.cache[id] = existing
		r.mu.Unlock()
		return err
	}

	result := tombstone.Clone()
	r.finishMutation(models.OpDelete, result)

	r.enqueue(ctx, models.OpDelete, result)
	return nil
}

// Snapshot returns every entity of the kind including tombstones. Used by the
// reconciliation engine.
func (r *Repository) Snapshot(ctx context.Context) ([]*models.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	entities := make([]*models.Entity, 0, len(r.cache))
	for _, e := range r.cache {
		entities = append(entities, e.Clone())
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, nil
}

// MergeRemote applies a remote entity list under last-write-wins: for each id
// the entity with the larger updatedAt is kept, and on equal timestamps the
// remote version wins (the server is the tie-break authority). Returns the
// number of entities that changed locally.
func (r *Repository) MergeRemote(ctx context.Context, remote []*models.Entity) (int, error) {
	r.mu.Lock()
	if err := r.ensureLoadedLocked(ctx); err != nil {
		r.mu.Unlock()
		return 0, err
	}

	type change struct {
		entity *models.Entity
		op     models.Op
	}
	var (
		changes  []change
		restore  = make(map[string]*models.Entity)
		inserted []string
	)
	for _, rem := range remote {
		if rem.ID == "" {
			continue
		}
		local, ok := r.cache[rem.ID]
		if ok && local.NewerThan(rem) {
			continue // local write is strictly newer, keep it
		}

		op := models.OpUpdate
		switch {
		case rem.Deleted:
			op = models.OpDelete
		case !ok || local.Deleted:
			op = models.OpCreate
		}

		if ok {
			restore[rem.ID] = local
		} else {
			inserted = append(inserted, rem.ID)
		}
		clone := rem.Clone()
		r.cache[rem.ID] = clone

		// A remote tombstone for something never seen locally changes
		// nothing observable; store it but skip the notification.
		if !ok && rem.Deleted {
			continue
		}
		changes = append(changes, change{entity: clone.Clone(), op: op})
	}

	if len(restore) == 0 && len(inserted) == 0 {
		r.mu.Unlock()
		return 0, nil
	}

	if err := r.persistLocked(ctx); err != nil {
		for id, prev := range restore {
			r.cache[id] = prev
		}
		for _, id := range inserted {
			delete(r.cache, id)
		}
		r.mu.Unlock()
		return 0, err
	}

	r.notifyMu.Lock()
	r.mu.Unlock()
	for _, c := range changes {
		r.fire(c.op, c.entity)
	}
	r.notifyMu.Unlock()

	return len(restore) + len(inserted), nil
}

// ConfirmCreate replaces a provisional client-generated id with the
// server-assigned one after a successful create replay and returns the entity
// now living under the server id. A local write that landed on the
// provisional id while the replay was in flight is newer than the pushed
// snapshot; its payload is carried over instead of the server echo so the
// commit point holds.
func (r *Repository) ConfirmCreate(ctx context.Context, provisionalID string, confirmed *models.Entity) (*models.Entity, error) {
	if confirmed == nil || confirmed.ID == "" {
		return nil, fmt.Errorf("confirmed entity has no id")
	}

	r.mu.Lock()
	if err := r.ensureLoadedLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	prevProvisional, hadProvisional := r.cache[provisionalID]
	if provisionalID != confirmed.ID {
		delete(r.cache, provisionalID)
	}

	winner := confirmed.Clone()
	if hadProvisional && prevProvisional.NewerThan(confirmed) {
		winner = prevProvisional.Clone()
		winner.ID = confirmed.ID
	}

	prevConfirmed, hadConfirmed := r.cache[confirmed.ID]
	if !hadConfirmed || !prevConfirmed.NewerThan(winner) {
		r.cache[confirmed.ID] = winner
	}

	if err := r.persistLocked(ctx); err != nil {
		if hadProvisional {
			r.cache[provisionalID] = prevProvisional
		}
		if hadConfirmed {
			r.cache[confirmed.ID] = prevConfirmed
		} else if provisionalID != confirmed.ID {
			delete(r.cache, confirmed.ID)
		}
		r.mu.Unlock()
		return nil, err
	}

	result := r.cache[confirmed.ID].Clone()
	r.finishMutation(models.OpUpdate, result)
	return result, nil
}

// ensureLoadedLocked populates the cache from the persistence adapter once.
// Caller holds r.mu.
func (r *Repository) ensureLoadedLocked(ctx context.Context) error {
	if r.warm {
		return nil
	}

	data, err := r.store.Get(ctx, kvstore.EntityKey(r.kind))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		r.warm = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s from store: %w", r.kind, err)
	}

	var entities []*models.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return fmt.Errorf("failed to decode stored %s: %w", r.kind, err)
	}
	for _, e := range entities {
		if e.ID != "" {
			r.cache[e.ID] = e
		}
	}
	r.warm = true
	return nil
}

// persistLocked writes the whole kind (tombstones included) to its storage
// key. Caller holds r.mu.
func (r *Repository) persistLocked(ctx context.Context) error {
	entities := make([]*models.Entity, 0, len(r.cache))
	for _, e := range r.cache {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.kind, err)
	}
	if err := r.store.Put(ctx, kvstore.EntityKey(r.kind), data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", r.kind, err)
	}
	return nil
}

// nextTimestampLocked returns a wall-clock timestamp that is strictly greater
// than the id's current updatedAt, keeping updatedAt monotonically
// non-decreasing per id. Caller holds r.mu.
func (r *Repository) nextTimestampLocked(id string) int64 {
	ts := r.now().UnixMilli()
	if existing, ok := r.cache[id]; ok && ts <= existing.UpdatedAt {
		ts = existing.UpdatedAt + 1
	}
	return ts
}

// finishMutation hands off from the cache lock to the notification lock so
// listener delivery keeps mutation order. Caller holds r.mu; it is released
// here.
func (r *Repository) finishMutation(op models.Op, entity *models.Entity) {
	r.notifyMu.Lock()
	r.mu.Unlock()
	r.fire(op, entity)
	r.notifyMu.Unlock()
}

func (r *Repository) fire(op models.Op, entity *models.Entity) {
	r.subMu.Lock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.subMu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(op, entity.Clone())
		}
	}
}

// enqueue hands a committed mutation to the reconciliation engine, when one
// is attached.
func (r *Repository) enqueue(ctx context.Context, op models.Op, entity *models.Entity) {
	remote := r.getRemote()
	if remote == nil {
		return
	}
	remote.EnqueueWrite(ctx, models.PendingWrite{
		Op:       op,
		Entity:   entity.Clone(),
		QueuedAt: r.now().UnixMilli(),
	})
}
