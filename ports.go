package taskpool

import (
	"context"
	"time"
)

// RecordStore abstracts the external task table. Implementations must be
// safe for concurrent use and should wrap infrastructure failures in
// *GatewayError.
type RecordStore interface {
	// InsertBatch inserts all records or none. It returns an error wrapping
	// ErrDuplicateID when any id already exists.
	InsertBatch(ctx context.Context, recs []TaskRecord) error
	// InsertOne is insert-if-absent keyed on id.
	InsertOne(ctx context.Context, rec TaskRecord) (UpsertOutcome, error)
	// PatchStatus updates one record's status and its updated_at timestamp.
	PatchStatus(ctx context.Context, id string, status Status) error
	// PatchStatusBatch applies all updates or none.
	PatchStatusBatch(ctx context.Context, updates []StatusUpdate) error
	// AdvanceStatusBatch is PatchStatusBatch with a guard: records already in
	// a terminal status are left untouched, so a stale or replayed update
	// cannot revive a finished task.
	AdvanceStatusBatch(ctx context.Context, updates []StatusUpdate) error
	// ListByStatus returns up to limit records in stable (insertion) order.
	ListByStatus(ctx context.Context, status Status, limit int) ([]TaskRecord, error)
	CountByStatus(ctx context.Context, status Status) (int, error)
	// ListTerminalBefore returns SUCCESS/FAILED records whose last transition
	// is older than cutoff. limit <= 0 means no limit.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]TaskRecord, error)
	Delete(ctx context.Context, ids []string) error
}

// Broker abstracts the message queue feeding the worker fleet.
type Broker interface {
	// Publish sends one broker message carrying the whole sub-batch of
	// canonical JSON payloads. Priority is advisory.
	Publish(ctx context.Context, payloads []string, priority int) error
	// Depth returns the number of waiting messages, 0 for a queue the broker
	// has not seen yet, or -1 when the broker cannot be queried.
	Depth(ctx context.Context) int
	// Peek returns the next waiting payload without consuming it.
	Peek(ctx context.Context) (payload string, ok bool, err error)
}

// Archive is the append-only membership set of task ids that have been seen
// and fully processed. It outlives the live records and is the sole guard
// against re-ingesting an archived task.
type Archive interface {
	// ContainsMany reports membership order-aligned with ids.
	ContainsMany(ctx context.Context, ids []string) ([]bool, error)
	AddMany(ctx context.Context, ids []string) error
}

// SignalSource is the feed of completion signals from the execution fleet.
// Fetched signals stay on the feed until acknowledged, so a crash between
// the store update and Ack replays them.
type SignalSource interface {
	Fetch(ctx context.Context, limit int) ([]Signal, error)
	Ack(ctx context.Context, entryIDs []string) error
}

// Notifier delivers operator notifications. Implementations are best-effort
// and must not propagate delivery failures.
type Notifier interface {
	Notify(ctx context.Context, message string)
}
