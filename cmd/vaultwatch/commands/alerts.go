package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vaultwatch/vaultwatch/internal/alert"
)

// NewAlertsCommand creates the alerts command: run one alert evaluation pass
// and print the stats.
func NewAlertsCommand(opts *Options) *cobra.Command {
	var (
		objectNames []string
		forceSend   bool
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate expiration alerts and send notifications",
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

			if err := svc.notifier.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			stats, err := svc.evaluator.Run(ctx, alert.Options{
				ObjectNames: objectNames,
				ForceSend:   forceSend,
			})
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}

	cmd.Flags().StringSliceVar(&objectNames, "object", nil,
		"Object name to evaluate (repeatable; default: all records)")
	cmd.Flags().BoolVar(&forceSend, "force", false,
		"Bypass suppression rules (band membership still applies)")

	return cmd
}
