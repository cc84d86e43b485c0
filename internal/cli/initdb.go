package cli

import (
	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.migrate(ctx); err != nil {
			return err
		}
		a.log.Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
