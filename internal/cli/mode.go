package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"forex-trader/internal/models"
)

// newModeCmd shows or switches the execution mode. Switching to a broker
// mode requires an established session, so the command connects first.
func newModeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mode [SIMULATION|PAPER|LIVE]",
		Short: "Show or set the execution mode",
		Long: `Without arguments, shows the current execution mode. With a mode
argument, switches to it. PAPER and LIVE require a broker session; LIVE
additionally requires allow_live in the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if len(args) == 0 {
				if output.IsJSON() {
					return output.JSON(map[string]string{"mode": string(app.Engine.Mode())})
				}
				output.Printf("Execution mode: %s\n", FormatMode(app.Engine.Mode()))
				return nil
			}

			mode := models.ExecutionMode(strings.ToUpper(args[0]))
			if mode.RequiresBroker() && !app.Connector.IsConnected() {
				if err := app.Connector.Connect(cmd.Context()); err != nil {
					output.Error("Cannot reach broker gateway: %v", err)
					return err
				}
			}
			if err := app.Engine.SetMode(mode); err != nil {
				output.Error("Mode change rejected: %v", err)
				return err
			}
			if app.Store != nil {
				app.Store.SetSetting(cmd.Context(), "trading_mode", string(mode))
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"mode": string(mode)})
			}
			output.Success("Execution mode set to %s", mode)
			if mode == models.ModeLive {
				output.Warning("Live trading enabled: orders will reach the real market")
			}
			return nil
		},
	}
}
