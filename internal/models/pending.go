package models

// Op names a locally committed mutation kind.
type Op string

// Mutation operations recorded in the pending queue.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// PendingWrite is a local mutation that has not been confirmed by the remote
// API yet. It is created when a write happens while the gateway is
// unreachable and removed once the write is replayed successfully, or when a
// newer local write for the same id supersedes it.
type PendingWrite struct {
	Entity   *Entity `json:"entity"`
	Op       Op      `json:"op"`
	QueuedAt int64   `json:"queuedAt"` // unix milliseconds
	Seq      uint64  `json:"seq"`      // queue identity, assigned by the engine
}

// SyncState is the per-kind reconciliation metadata, owned exclusively by the
// reconciliation engine and persisted next to the kind's entities.
type SyncState struct {
	Pending      []PendingWrite `json:"pending"`
	LastSyncedAt int64          `json:"lastSyncedAt"` // unix milliseconds, 0 = never synced
}
