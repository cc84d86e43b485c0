// Package cli wires the engine's cobra entrypoints.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "soad",
	Short: "Multi-broker trading reconciliation engine",
	Long: `soad keeps a durable ledger of trades, per-strategy positions and
balances reconciled against brokerage ground truth, and drives open
orders through their lifecycle.

Subcommands:
  run      start the periodic reconciliation and order loops
  sync     run one bookkeeping cycle and exit
  orders   run one order pass and exit
  init-db  apply database migrations`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "soad.yaml", "path to YAML config file")
}
