package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signalhouse/overture/pkg/telemetry/metrics"

	"github.com/robfig/cron/v3"
)

// Scheduler sweeps EvaluateAll on the pack's cron schedule so experiments
// advance without anyone calling the evaluate endpoint.
type Scheduler struct {
	allocator *Allocator
	packs     PackProvider
	collector *metrics.Collector
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a sweep scheduler for the allocator. A nil collector
// records nothing.
func NewScheduler(allocator *Allocator, packs PackProvider, collector *metrics.Collector, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		allocator: allocator,
		packs:     packs,
		collector: collector,
		logger:    logger.With("component", "experiment-scheduler"),
		cron:      cron.New(),
	}
}

// Start begins periodic sweeps on the pack's SweepSchedule. An empty
// schedule disables sweeping. The scheduler stops itself when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	pack, err := s.packs.Current()
	if err != nil {
		return fmt.Errorf("reading sweep schedule: %w", err)
	}
	schedule := pack.Experiments.SweepSchedule
	if schedule == "" {
		s.logger.Info("sweep schedule not configured, scheduler idle")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("experiment sweep scheduler started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// sweep runs one full evaluation pass.
func (s *Scheduler) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	decisions, err := s.allocator.EvaluateAll(sweepCtx)
	if err != nil {
		s.logger.Error("experiment sweep failed", "error", err)
		return
	}

	acted := 0
	for _, d := range decisions {
		s.collector.RecordExperimentEvaluation(string(d.Op))
		if d.Op != OpNoop {
			acted++
		}
	}
	s.refreshGauges(sweepCtx)

	if acted > 0 {
		s.logger.Info("experiment sweep completed", "evaluated", len(decisions), "acted", acted)
	} else {
		s.logger.Debug("experiment sweep completed", "evaluated", len(decisions))
	}
}

// refreshGauges republishes every experiment's lifecycle state and variant
// weights after a sweep, so the dashboard tracks reweighting even when no
// decision traffic touches an experiment.
func (s *Scheduler) refreshGauges(ctx context.Context) {
	if !s.collector.Enabled() {
		return
	}

	experiments, err := s.allocator.List(ctx)
	if err != nil {
		s.logger.Warn("experiment gauge refresh skipped", "error", err)
		return
	}
	for _, exp := range experiments {
		s.collector.SetExperimentState(exp.ID, string(exp.State))
		for i := range exp.Variants {
			s.collector.SetVariantWeight(exp.ID, exp.Variants[i].ID, exp.Variants[i].Weight)
		}
	}
}

// Stop halts the scheduler and waits for a running sweep to finish. Safe
// to call when never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("experiment sweep scheduler stopped")
	}
}

// IsRunning reports whether sweeps are scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextSweep returns the next scheduled sweep time, nil when idle.
func (s *Scheduler) NextSweep() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
