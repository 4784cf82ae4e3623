package taskpool

import (
	"context"
	"log/slog"
	"time"
)

// Archiver periodically moves aged terminal records out of the live store
// into the archive membership set. The retention delay keeps it from racing
// status updates on records that just completed.
type Archiver struct {
	store     RecordStore
	archive   Archive
	retention time.Duration
	batch     int
	log       *slog.Logger
}

func NewArchiver(store RecordStore, archive Archive, retention time.Duration, batch int, log *slog.Logger) *Archiver {
	if retention == 0 {
		retention = 24 * time.Hour
	}
	if batch <= 0 {
		batch = 1000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{store: store, archive: archive, retention: retention, batch: batch, log: log}
}

// ArchiveCompleted runs one archival cycle: archive-insert strictly before
// delete, never the reverse. Once the live record is gone the membership set
// is the only durable memory that the id was processed, so a failed archive
// insert aborts the cycle with nothing deleted. A failed delete after a
// successful insert leaves harmless terminal records that the next cycle
// retries; the membership set is append-only and idempotent.
func (a *Archiver) ArchiveCompleted(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)
	recs, err := a.store.ListTerminalBefore(ctx, cutoff, a.batch)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		a.log.Debug("no tasks to archive")
		return nil
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	if err := a.archive.AddMany(ctx, ids); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, ids); err != nil {
		a.log.Warn("ids archived but store delete failed; records retried next cycle",
			"count", len(ids), "err", err)
		return err
	}
	a.log.Info("archived completed tasks", "count", len(ids), "cutoff", cutoff)
	return nil
}
