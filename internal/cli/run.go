package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"forex-trader/internal/engine"
	"forex-trader/internal/models"
)

// newRunCmd starts the long-running trading session: gateway connection with
// automatic reconnection, heartbeat monitoring, market data for the allowed
// pairs and the trade update loop, until interrupted.
func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Operator-facing notifications for connection events.
			app.Monitor.OnStatusChange(func(old, new models.HealthStatus) {
				app.Notifier.SendHealthTransition(ctx, old, new)
			})
			app.Engine.OnFallbackChange(func(active bool) {
				app.Notifier.SendFallback(ctx, active)
			})

			teardown, err := connectSession(ctx, app)
			if err != nil {
				// The connector keeps retrying in the background; the
				// session still runs, in simulation, until it recovers.
				output.Warning("Initial gateway connection failed: %v", err)
				app.Market.Start(ctx)
				app.Orders.Start(ctx)
				app.Monitor.Start(ctx)
				app.Engine.Start(ctx)
				teardown = func() {
					app.Engine.Stop()
					app.Monitor.Stop()
					app.Orders.Stop()
					app.Market.Stop()
					app.Connector.Disconnect()
				}
			}
			defer teardown()

			// A persisted operator mode switch survives restarts.
			mode := engine.StartupMode(ctx, app.Config, app.Store)
			if err := app.Engine.SetMode(mode); err != nil {
				output.Warning("Cannot enter %s mode (%v); staying in SIMULATION", mode, err)
			}

			for _, pair := range app.Config.Risk.AllowedPairs {
				if err := app.Market.Subscribe(models.Pair(pair)); err != nil {
					output.Warning("Market data subscription failed for %s: %v", pair, err)
				}
			}

			output.Success("Trading session started in %s mode", app.Engine.Mode())
			output.Dim("Press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigCh:
				output.Println()
				output.Info("Shutting down")
			case <-ctx.Done():
			}
			return nil
		},
	}
}
