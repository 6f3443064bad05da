package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// newStatusCmd reports the connector, health and engine state. With
// --connect it establishes a gateway session first so the probe reflects a
// live round trip rather than a cold process.
func newStatusCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show broker connection and trading status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			connect, _ := cmd.Flags().GetBool("connect")
			if connect {
				if err := app.Connector.Connect(ctx); err != nil {
					output.Warning("Gateway connection failed: %v", err)
				} else {
					defer app.Connector.Disconnect()
					if latency, err := app.Monitor.CheckHealth(ctx); err == nil {
						output.Dim("Heartbeat round trip: %s", FormatDuration(latency))
					}
				}
			}

			connStatus := app.Connector.Status()
			monStatus := app.Monitor.Status()
			engStatus := app.Engine.Status(ctx)
			ordStatus := app.Orders.ServiceStatus()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"connection": connStatus,
					"health":     monStatus,
					"engine":     engStatus,
					"orders":     ordStatus,
				})
			}

			output.Bold("Broker Connection")
			output.Printf("  State:        %s\n", FormatConnectionState(connStatus.State))
			output.Printf("  Gateway:      %s\n", app.Config.Broker.URL())
			if connStatus.Connected {
				output.Printf("  Uptime:       %s\n", FormatDuration(connStatus.Uptime))
				output.Printf("  Next order:   %d\n", connStatus.NextOrderID)
			}
			if connStatus.ReconnectAttempts > 0 {
				output.Printf("  Reconnects:   %d\n", connStatus.ReconnectAttempts)
			}
			if connStatus.LastError != "" {
				output.Printf("  Last error:   %s\n", connStatus.LastError)
			}
			output.Println()

			output.Bold("Health")
			output.Printf("  Status:       %s\n", FormatHealth(monStatus.Status))
			if !monStatus.LastSuccess.IsZero() {
				output.Printf("  Last probe:   %s ago\n", FormatDuration(time.Since(monStatus.LastSuccess)))
			}
			output.Printf("  Success rate: %.0f%%\n", monStatus.SuccessRate*100)
			output.Println()

			output.Bold("Trading")
			output.Printf("  Mode:         %s\n", FormatMode(engStatus.Mode))
			if engStatus.Fallback {
				output.Warning("  Fallback:     simulation (broker down)")
			}
			output.Printf("  Open trades:  %d\n", engStatus.OpenTrades)
			output.Printf("  Pending ords: %d\n", ordStatus.Pending)
			output.Printf("  Circuit:      %s\n", ordStatus.CircuitState)
			output.Printf("  Live allowed: %v\n", engStatus.LiveAllowed)
			return nil
		},
	}
	cmd.Flags().Bool("connect", false, "establish a gateway session for a live health probe")
	return cmd
}

// connectSession establishes the gateway session and starts the supporting
// services, returning a teardown function.
func connectSession(ctx context.Context, app *App) (func(), error) {
	if err := app.Connector.Connect(ctx); err != nil {
		return nil, err
	}
	app.Market.Start(ctx)
	app.Orders.Start(ctx)
	app.Monitor.Start(ctx)
	app.Engine.Start(ctx)

	return func() {
		app.Engine.Stop()
		app.Monitor.Stop()
		app.Orders.Stop()
		app.Market.Stop()
		app.Connector.Disconnect()
	}, nil
}
