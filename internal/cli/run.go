package cli

import (
	"github.com/spf13/cobra"

	"github.com/r0fls/soad-sub000/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the periodic reconciliation and order loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.serveMetrics()

		syncLoop := scheduler.NewLoop("sync", a.cfg.SyncEvery(), a.cycle.Run, a.log)
		orderLoop := scheduler.NewLoop("orders", a.cfg.OrdersEvery(), a.manager.Run, a.log)

		a.log.Info("engine started",
			"sync_interval", a.cfg.SyncEvery().String(),
			"order_interval", a.cfg.OrdersEvery().String(),
			"brokers", len(a.brokers))

		done := make(chan struct{})
		go func() {
			syncLoop.Run(ctx)
			done <- struct{}{}
		}()
		go func() {
			orderLoop.Run(ctx)
			done <- struct{}{}
		}()
		<-done
		<-done

		a.log.Info("engine stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
