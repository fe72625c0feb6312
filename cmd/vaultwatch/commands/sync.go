package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command: run one inventory sync and print
// the stats.
func NewSyncCommand(opts *Options) *cobra.Command {
	var subscriptionIDs []string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one inventory sync pass",
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

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			ids := subscriptionIDs
			if len(ids) == 0 {
				ids = svc.cfg.Subscriptions
			}

			stats, err := svc.syncer.Run(ctx, ids)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}

	cmd.Flags().StringSliceVar(&subscriptionIDs, "subscription", nil,
		"Subscription ID to sync (repeatable; default: config allow-list or all)")

	return cmd
}
