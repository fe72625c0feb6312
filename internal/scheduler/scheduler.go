// Package scheduler periodically triggers the sync and alert pipelines
// through the same entry points the API uses. The single-flight guards
// inside the pipelines keep an overlapping timer tick from racing a manual
// run.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"github.com/vaultwatch/vaultwatch/internal/alert"
	"github.com/vaultwatch/vaultwatch/internal/logging"
	"github.com/vaultwatch/vaultwatch/internal/syncer"
)

// Config holds cron schedules for the periodic triggers.
type Config struct {
	SyncSchedule  string
	AlertSchedule string
	Subscriptions []string // allow-list passed to every scheduled sync
}

// Scheduler drives periodic sync and alert runs.
type Scheduler struct {
	cron      *cron.Cron
	syncer    *syncer.Syncer
	evaluator *alert.Evaluator
	config    Config
	logger    *logging.Logger
}

// New creates a Scheduler. Start registers the jobs and begins ticking.
func New(sync *syncer.Syncer, eval *alert.Evaluator, config Config, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &Scheduler{
		cron:      cron.New(),
		syncer:    sync,
		evaluator: eval,
		config:    config,
		logger:    logger.WithComponent("scheduler"),
	}
}

// Start registers both jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.config.SyncSchedule, func() {
		s.runSync(ctx)
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.config.AlertSchedule, func() {
		s.runAlerts(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started: sync %q, alerts %q", s.config.SyncSchedule, s.config.AlertSchedule)
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSync(ctx context.Context) {
	stats, err := s.syncer.Run(ctx, s.config.Subscriptions)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			s.logger.Warn("scheduled sync skipped: %v", err)
			return
		}
		s.logger.Error("scheduled sync failed: %v", err)
		return
	}
	s.logger.Info("scheduled sync done: %d vaults, %d errors", stats.VaultsProcessed, len(stats.Errors))
}

func (s *Scheduler) runAlerts(ctx context.Context) {
	stats, err := s.evaluator.Run(ctx, alert.Options{})
	if err != nil {
		if errors.Is(err, alert.ErrAlertRunInProgress) {
			s.logger.Warn("scheduled alert run skipped: %v", err)
			return
		}
		s.logger.Error("scheduled alert run failed: %v", err)
		return
	}
	s.logger.Info("scheduled alert run done: %d sent, %d errors", stats.AlertsSent, len(stats.Errors))
}
