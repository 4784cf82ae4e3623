package taskpool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleConfig sets the control loop intervals. A zero interval disables
// that loop.
type ScheduleConfig struct {
	ReplenishEvery time.Duration
	ReconcileEvery time.Duration
	ArchiveEvery   time.Duration
	CycleTimeout   time.Duration // per-cycle deadline, bounds every gateway call
}

// Scheduler drives the background control loops. Cycle failures are logged
// and notified, then the loop simply waits for its next tick; cycles are
// independent and idempotent, so there is no in-cycle retry.
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
	log  *slog.Logger
}

func NewScheduler(svc *Service, cfg ScheduleConfig, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.CycleTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	s := &Scheduler{cron: cron.New(), svc: svc, log: log}

	add := func(name string, every time.Duration, run func(context.Context) error) error {
		if every <= 0 {
			return nil
		}
		_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := run(ctx); err != nil {
				s.log.Error("control loop cycle failed", "loop", name, "err", err)
				s.svc.notify(ctx, fmt.Sprintf("%s cycle failed: %v", name, err))
			}
		})
		return err
	}

	if err := add("replenish", cfg.ReplenishEvery, svc.Replenish); err != nil {
		return nil, err
	}
	if err := add("reconcile", cfg.ReconcileEvery, svc.Reconcile); err != nil {
		return nil, err
	}
	if err := add("archive", cfg.ArchiveEvery, svc.ArchiveCompleted); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the loops in their own goroutines.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for any running cycle to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
