package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaultwatch/vaultwatch/cmd/vaultwatch/commands"
	"github.com/vaultwatch/vaultwatch/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	opts := &commands.Options{}

	rootCmd := &cobra.Command{
		Use:   "vaultwatch",
		Short: "Key Vault expiration monitor",
		Long: `vaultwatch mirrors secret and certificate metadata from your Key Vaults
into a local inventory, answers filtered queries and KPI summaries, and sends
deduplicated expiration alerts.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.ConfigPath = configFile
			opts.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "vaultwatch.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewServeCommand(opts),
		commands.NewSyncCommand(opts),
		commands.NewAlertsCommand(opts),
	)

	return rootCmd.Execute()
}
