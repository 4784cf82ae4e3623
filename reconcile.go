package taskpool

import (
	"context"
	"log/slog"
)

// Reconciler consumes completion signals from the execution fleet and
// advances records to their terminal status. The store update is a strict
// gate before signals are acknowledged: deleting a signal whose result was
// never written would lose the completion permanently, while re-fetching an
// already-applied signal just recomputes the same transition.
type Reconciler struct {
	source     SignalSource
	store      RecordStore
	fetchLimit int
	log        *slog.Logger
}

func NewReconciler(source SignalSource, store RecordStore, fetchLimit int, log *slog.Logger) *Reconciler {
	if fetchLimit <= 0 {
		fetchLimit = 200
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{source: source, store: store, fetchLimit: fetchLimit, log: log}
}

// Reconcile drains one batch of completion signals. The task id is
// recomputed from each signal's embedded original payload with the same
// canonicalization and hash as ingestion; the fleet does not echo store ids.
//
// Signals with an ambiguous outcome route the record back to PENDING for
// retry rather than fabricating a terminal state. Malformed signals are
// skipped with a warning but still acknowledged; leaving them on the feed
// would wedge it forever.
func (rc *Reconciler) Reconcile(ctx context.Context) error {
	sigs, err := rc.source.Fetch(ctx, rc.fetchLimit)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		return nil
	}

	updates := make([]StatusUpdate, 0, len(sigs))
	acks := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		acks = append(acks, sig.EntryID)
		id, _, err := Fingerprint(sig.Input)
		if err != nil {
			rc.log.Warn("skipping malformed completion signal", "entry", sig.EntryID, "err", err)
			continue
		}
		updates = append(updates, StatusUpdate{ID: id, Status: signalStatus(sig)})
	}

	// The guarded patch keeps terminal records terminal: a duplicate signal
	// recomputes a transition the store already applied, and a stale ambiguous
	// signal arriving after completion must not push the record back to
	// PENDING.
	if len(updates) > 0 {
		if err := rc.store.AdvanceStatusBatch(ctx, updates); err != nil {
			// Signals stay unacknowledged and will be fetched again.
			return err
		}
	}
	if err := rc.source.Ack(ctx, acks); err != nil {
		return err
	}
	rc.log.Info("reconciled completion signals", "signals", len(sigs), "updates", len(updates))
	return nil
}

func signalStatus(sig Signal) Status {
	switch {
	case sig.State == SignalStateSuccess && sig.Success:
		return StatusSuccess
	case sig.State == SignalStateSuccess:
		return StatusFailed
	default:
		return StatusPending
	}
}
