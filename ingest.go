package taskpool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// Ingester turns raw submitted payloads into deduplicated, persisted task
// records.
type Ingester struct {
	store   RecordStore
	archive Archive
	broker  Broker
	log     *slog.Logger
}

func NewIngester(store RecordStore, archive Archive, broker Broker, log *slog.Logger) *Ingester {
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{store: store, archive: archive, broker: broker, log: log}
}

// Ingest deduplicates payloads and persists the remainder in PENDING state.
// A payload whose id is already in the archive membership set is dropped as
// a duplicate even though it no longer exists in the live store. Malformed
// payloads reject the whole request with a ValidationError before any side
// effect; duplicates are counted, never raised.
func (ing *Ingester) Ingest(ctx context.Context, payloads []json.RawMessage) (IngestResult, error) {
	var res IngestResult
	if len(payloads) == 0 {
		return res, nil
	}

	seen := make(map[string]bool, len(payloads))
	recs := make([]TaskRecord, 0, len(payloads))
	for _, p := range payloads {
		id, canonical, err := Fingerprint(p)
		if err != nil {
			return IngestResult{}, err
		}
		if seen[id] {
			res.Duplicated++
			continue
		}
		seen[id] = true
		recs = append(recs, TaskRecord{ID: id, Status: StatusPending, Payload: string(canonical)})
	}

	// One round trip against the archive membership set.
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	archived, err := ing.archive.ContainsMany(ctx, ids)
	if err != nil {
		return IngestResult{}, err
	}
	fresh := recs[:0]
	for i, rec := range recs {
		if i < len(archived) && archived[i] {
			res.Duplicated++
			continue
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return res, nil
	}

	added, duplicated, err := ing.insert(ctx, fresh)
	res.Added += added
	res.Duplicated += duplicated
	return res, err
}

// PublishPriority publishes payloads straight to the broker with the given
// priority and then records them as PROCESSING. The publish must be
// acknowledged before anything is written, so a store failure here can only
// leave already-delivered work unrecorded, never the reverse.
func (ing *Ingester) PublishPriority(ctx context.Context, payloads []json.RawMessage, priority int) error {
	if len(payloads) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(payloads))
	bodies := make([]string, 0, len(payloads))
	recs := make([]TaskRecord, 0, len(payloads))
	for _, p := range payloads {
		id, canonical, err := Fingerprint(p)
		if err != nil {
			return err
		}
		bodies = append(bodies, string(canonical))
		if seen[id] {
			continue
		}
		seen[id] = true
		recs = append(recs, TaskRecord{ID: id, Status: StatusProcessing, Payload: string(canonical)})
	}
	if err := ing.broker.Publish(ctx, bodies, priority); err != nil {
		return err
	}
	added, duplicated, err := ing.insert(ctx, recs)
	if err != nil {
		return err
	}
	ing.log.Info("published priority tasks", "count", len(bodies), "priority", priority,
		"recorded", added, "duplicated", duplicated)
	return nil
}

// insert tries one optimistic bulk insert and degrades to per-item inserts
// when the batch hits a duplicate, so added/duplicated stay exact. The
// degradation is required behavior: failing the whole batch would lose the
// non-duplicate tasks in it.
func (ing *Ingester) insert(ctx context.Context, recs []TaskRecord) (added, duplicated int, err error) {
	err = ing.store.InsertBatch(ctx, recs)
	if err == nil {
		return len(recs), 0, nil
	}
	if !errors.Is(err, ErrDuplicateID) {
		return 0, 0, err
	}
	ing.log.Warn("bulk insert hit duplicates, retrying per item", "count", len(recs))
	for _, rec := range recs {
		outcome, err := ing.store.InsertOne(ctx, rec)
		if err != nil {
			return added, duplicated, err
		}
		if outcome == Inserted {
			added++
		} else {
			duplicated++
		}
	}
	return added, duplicated, nil
}
