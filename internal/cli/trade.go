package cli

import (
	"github.com/spf13/cobra"

	"forex-trader/internal/models"
)

func newTradeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Manage trades",
	}
	cmd.AddCommand(newTradeListCmd(app))
	cmd.AddCommand(newTradeCloseCmd(app))
	cmd.AddCommand(newTradeCloseAllCmd(app))
	return cmd
}

func newTradeListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				output.Error("No data store available")
				return nil
			}

			trades, err := app.Store.GetOpenTrades(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No open trades")
				return nil
			}

			table := NewTable(output, "ID", "PAIR", "SIDE", "LOTS", "ENTRY", "STOP", "TARGET", "P/L", "AGE")
			for _, t := range trades {
				table.AddRow(FormatTradeRow(t)...)
			}
			table.Render()
			return nil
		},
	}
}

func newTradeCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close <trade-id>",
		Short: "Close one open trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			teardown, err := connectSession(ctx, app)
			if err != nil {
				output.Warning("Broker unreachable, closing at cached prices: %v", err)
			} else {
				defer teardown()
			}

			if err := app.Engine.CloseTrade(ctx, args[0], models.CloseManual); err != nil {
				output.Error("Close failed: %v", err)
				return err
			}
			output.Success("Trade %s closed", args[0])
			return nil
		},
	}
}

func newTradeCloseAllCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close-all",
		Short: "Close every open trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			teardown, err := connectSession(ctx, app)
			if err != nil {
				output.Warning("Broker unreachable, closing at cached prices: %v", err)
			} else {
				defer teardown()
			}

			if err := app.Engine.CloseAllTrades(ctx); err != nil {
				output.Error("Close-all finished with errors: %v", err)
				return err
			}
			output.Success("All open trades closed")
			return nil
		},
	}
}
