package taskpool

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a task record.
// Transitions move forward only: PENDING -> PROCESSING -> SUCCESS/FAILED.
// The single exception is reconciliation routing an ambiguous completion
// signal back to PENDING so the task is retried.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s allows no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// TaskRecord is the persisted representation of one unit of work.
type TaskRecord struct {
	ID        string    // content fingerprint of the canonical payload
	Status    Status    // current lifecycle state
	Payload   string    // canonical JSON, stored verbatim for re-publish and re-hash
	UpdatedAt time.Time // last status transition, drives the archival retention filter
}

// UpsertOutcome reports what an insert-if-absent did for one record.
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota
	AlreadyExists
)

// IngestResult reports exact accounting for one ingest call. Duplicates are
// a normal outcome, not an error.
type IngestResult struct {
	Added      int
	Duplicated int
}

// StatusUpdate is one record's target status in a batch patch.
type StatusUpdate struct {
	ID     string
	Status Status
}

// SignalStateSuccess marks a completion signal whose execution ran to the
// end; the Success flag then distinguishes SUCCESS from FAILED. Any other
// state is ambiguous and routes the record back to PENDING.
const SignalStateSuccess = "SUCCESS"

// Signal is one completion report from the downstream execution fleet. The
// original payload is embedded so the task id can be recomputed; the fleet
// is not assumed to echo the store's id back.
type Signal struct {
	EntryID string          // source-assigned id, used for acknowledgement
	Input   json.RawMessage // original payload as submitted
	State   string          // execution state reported by the fleet
	Success bool            // definitive success flag, meaningful when State is SUCCESS
}
