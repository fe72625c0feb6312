package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultwatch/vaultwatch/internal/httpapi"
	"github.com/vaultwatch/vaultwatch/internal/metrics"
	"github.com/vaultwatch/vaultwatch/internal/scheduler"
)

// NewServeCommand creates the serve command: run the HTTP API, the metrics
// listener, and (when enabled) the periodic scheduler until interrupted.
func NewServeCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the vaultwatch HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.store.Close(); err != nil {
					opts.Logger.Error("failed to close store: %v", err)
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metricsServer := metrics.NewServer(metrics.ServerConfig{
				Enabled:      svc.cfg.Metrics.Enabled,
				Port:         svc.cfg.Metrics.Port,
				Path:         svc.cfg.Metrics.Path,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
			})
			if err := metricsServer.Start(); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsServer.Stop(shutdownCtx)
			}()

			if svc.cfg.Scheduler.Enabled {
				sched := scheduler.New(svc.syncer, svc.evaluator, scheduler.Config{
					SyncSchedule:  svc.cfg.Scheduler.SyncSchedule,
					AlertSchedule: svc.cfg.Scheduler.AlertSchedule,
					Subscriptions: svc.cfg.Subscriptions,
				}, opts.Logger)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			server := httpapi.NewServer(svc.store, svc.syncer, svc.evaluator, svc.vaults, opts.Logger)
			return server.Start(ctx, svc.cfg.ListenAddr)
		},
	}
}
