package taskpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ReplenishConfig tunes the queue-depth-driven control loop.
type ReplenishConfig struct {
	TargetPoolSize int     // desired broker depth
	PoolRatio      float64 // refill below TargetPoolSize * PoolRatio
	MaxBatchFetch  int     // per-cycle cap on records pulled from the store
	SubBatchSize   int     // payloads per broker message; 1 publishes individually
	Priority       int     // advisory publish priority
}

func (c ReplenishConfig) withDefaults() ReplenishConfig {
	if c.TargetPoolSize <= 0 {
		c.TargetPoolSize = 5000
	}
	if c.PoolRatio <= 0 {
		c.PoolRatio = 0.6
	}
	if c.MaxBatchFetch <= 0 {
		c.MaxBatchFetch = 500
	}
	if c.SubBatchSize <= 0 {
		c.SubBatchSize = 10
	}
	return c
}

// Replenisher keeps the broker fed from the backing store. It holds no
// state across cycles; every cycle re-measures depth and is idempotent with
// respect to records it did not transition.
type Replenisher struct {
	store    RecordStore
	broker   Broker
	notifier Notifier
	cfg      ReplenishConfig
	log      *slog.Logger
}

func NewReplenisher(store RecordStore, broker Broker, notifier Notifier, cfg ReplenishConfig, log *slog.Logger) *Replenisher {
	if log == nil {
		log = slog.Default()
	}
	return &Replenisher{store: store, broker: broker, notifier: notifier, cfg: cfg.withDefaults(), log: log}
}

// Replenish runs one control cycle: measure depth, pull PENDING records in
// bounded batches, publish them, and mark them PROCESSING only after the
// publish is acknowledged. A broker error mid-cycle leaves the unpublished
// remainder PENDING; the next cycle naturally retries it.
//
// A store failure after a successful publish leaves the published records
// PENDING too, so a later cycle may publish them again. That is the accepted
// at-least-once window; the worker fleet must tolerate duplicate delivery.
func (r *Replenisher) Replenish(ctx context.Context) error {
	log := r.log.With("cycle", uuid.NewString())

	depth := r.broker.Depth(ctx)
	if depth < 0 {
		// Never guess a depth.
		return &GatewayError{Gateway: "broker", Op: "depth", Err: errors.New("depth query failed")}
	}
	threshold := int(float64(r.cfg.TargetPoolSize) * r.cfg.PoolRatio)
	if depth >= threshold {
		log.Debug("pool above threshold", "depth", depth, "threshold", threshold)
		return nil
	}

	need := r.cfg.TargetPoolSize - depth
	if need > r.cfg.MaxBatchFetch {
		need = r.cfg.MaxBatchFetch
	}
	r.notify(ctx, fmt.Sprintf("task pool low (depth %d, threshold %d), replenishing up to %d tasks", depth, threshold, need))

	recs, err := r.store.ListByStatus(ctx, StatusPending, need)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		log.Info("no pending tasks available to replenish")
		return nil
	}

	published := make([]StatusUpdate, 0, len(recs))
	var pubErr error
	for start := 0; start < len(recs); start += r.cfg.SubBatchSize {
		end := start + r.cfg.SubBatchSize
		if end > len(recs) {
			end = len(recs)
		}
		chunk := recs[start:end]
		bodies := make([]string, len(chunk))
		for i, rec := range chunk {
			bodies[i] = rec.Payload
		}
		if pubErr = r.broker.Publish(ctx, bodies, r.cfg.Priority); pubErr != nil {
			break
		}
		for _, rec := range chunk {
			published = append(published, StatusUpdate{ID: rec.ID, Status: StatusProcessing})
		}
	}

	if len(published) > 0 {
		if err := r.store.PatchStatusBatch(ctx, published); err != nil {
			if pubErr != nil {
				log.Error("broker publish failed mid-cycle", "published", len(published),
					"remaining", len(recs)-len(published), "err", pubErr)
			}
			log.Error("published tasks left PENDING in store, duplicates possible next cycle",
				"published", len(published), "err", err)
			return errors.Join(pubErr, err)
		}
	}
	if pubErr != nil {
		log.Error("broker publish failed mid-cycle", "published", len(published),
			"remaining", len(recs)-len(published), "err", pubErr)
		return pubErr
	}
	log.Info("replenished task pool", "published", len(published), "depth", depth, "threshold", threshold)
	return nil
}

func (r *Replenisher) notify(ctx context.Context, message string) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, message)
	}
}
