package taskpool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Gateways bundles the external collaborators. It is built once at service
// startup and injected into every controller; nothing in this package holds
// a global client handle.
type Gateways struct {
	Store    RecordStore
	Broker   Broker
	Archive  Archive
	Signals  SignalSource
	Notifier Notifier // optional
}

// ServiceConfig carries the recognized tuning options.
type ServiceConfig struct {
	Replenish            ReplenishConfig
	SignalFetchLimit     int
	Retention            time.Duration
	ArchiveBatch         int
	NotificationsEnabled bool
}

// Service is the composition root: it owns the controllers, the gateway set
// and the notification switch.
type Service struct {
	gw            Gateways
	ingester      *Ingester
	replenisher   *Replenisher
	reconciler    *Reconciler
	archiver      *Archiver
	notifications atomic.Bool
	notifier      Notifier
	log           *slog.Logger
}

func NewService(gw Gateways, cfg ServiceConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{gw: gw, log: log}
	s.notifications.Store(cfg.NotificationsEnabled)
	s.notifier = &gatedNotifier{enabled: &s.notifications, next: gw.Notifier}
	s.ingester = NewIngester(gw.Store, gw.Archive, gw.Broker, log)
	s.replenisher = NewReplenisher(gw.Store, gw.Broker, s.notifier, cfg.Replenish, log)
	s.reconciler = NewReconciler(gw.Signals, gw.Store, cfg.SignalFetchLimit, log)
	s.archiver = NewArchiver(gw.Store, gw.Archive, cfg.Retention, cfg.ArchiveBatch, log)
	return s
}

// Ingest persists deduplicated payloads in PENDING state.
func (s *Service) Ingest(ctx context.Context, payloads []json.RawMessage) (IngestResult, error) {
	return s.ingester.Ingest(ctx, payloads)
}

// PublishPriority pushes payloads to the broker ahead of the pool and
// records them as PROCESSING.
func (s *Service) PublishPriority(ctx context.Context, payloads []json.RawMessage, priority int) error {
	return s.ingester.PublishPriority(ctx, payloads, priority)
}

// Replenish runs one replenishment cycle.
func (s *Service) Replenish(ctx context.Context) error {
	return s.replenisher.Replenish(ctx)
}

// Reconcile drains one batch of completion signals.
func (s *Service) Reconcile(ctx context.Context) error {
	return s.reconciler.Reconcile(ctx)
}

// ArchiveCompleted runs one archival cycle.
func (s *Service) ArchiveCompleted(ctx context.Context) error {
	return s.archiver.ArchiveCompleted(ctx)
}

// UpdateStatuses validates and applies caller-supplied status transitions as
// one batch. Invalid input is rejected before any side effect; a gateway
// failure surfaces as a single aggregated error.
func (s *Service) UpdateStatuses(ctx context.Context, updates []StatusUpdate) error {
	if len(updates) == 0 {
		return &ValidationError{Msg: "no updates provided"}
	}
	for i, u := range updates {
		if u.ID == "" {
			return &ValidationError{Msg: fmt.Sprintf("update %d: missing id", i)}
		}
		if !u.Status.Valid() {
			return &ValidationError{Msg: fmt.Sprintf("update %d: invalid status %q", i, u.Status)}
		}
	}
	return s.gw.Store.PatchStatusBatch(ctx, updates)
}

// SetNotifications flips the operator notification switch.
func (s *Service) SetNotifications(enabled bool) { s.notifications.Store(enabled) }

// NotificationsEnabled reports the current switch position.
func (s *Service) NotificationsEnabled() bool { return s.notifications.Load() }

func (s *Service) notify(ctx context.Context, message string) {
	s.notifier.Notify(ctx, message)
}

// gatedNotifier applies the service-owned on/off cell in front of the real
// notifier.
type gatedNotifier struct {
	enabled *atomic.Bool
	next    Notifier
}

func (g *gatedNotifier) Notify(ctx context.Context, message string) {
	if g.next == nil || !g.enabled.Load() {
		return
	}
	g.next.Notify(ctx, message)
}
