package cli

import (
	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Run one order pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.manager.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(ordersCmd)
}
