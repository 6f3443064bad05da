// Package cli provides the command-line interface for the trading application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"forex-trader/internal/broker"
	"forex-trader/internal/config"
	"forex-trader/internal/contract"
	"forex-trader/internal/engine"
	"forex-trader/internal/executor"
	"forex-trader/internal/marketdata"
	"forex-trader/internal/models"
	"forex-trader/internal/notify"
	"forex-trader/internal/orders"
	"forex-trader/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.DataStore
	Contracts *contract.Resolver
	Connector *broker.Connector
	Monitor   *broker.Monitor
	Market    *marketdata.Service
	Orders    *orders.Service
	Engine    *engine.Engine
	Notifier  notify.Notifier
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := buildApp(cfg, logger)

	rootCmd := &cobra.Command{
		Use:   "forex-trader",
		Short: "Forex Trader - broker connection and order execution for forex trading",
		Long: `Forex Trader manages the broker gateway session for an automated forex
trading bot: connection supervision with automatic reconnection, order
placement and tracking, simulated and live trade execution.

Use 'forex-trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/forex-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newModeCmd(app))
	rootCmd.AddCommand(newTradeCmd(app))
	rootCmd.AddCommand(newRunCmd(app))

	return rootCmd
}

// buildApp wires the application dependency graph.
func buildApp(cfg *config.Config, logger zerolog.Logger) *App {
	app := &App{
		Config:    cfg,
		Logger:    logger,
		Contracts: contract.NewResolver(),
	}

	dataStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, history will not persist")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Database.Path).Msg("SQLite store initialized")
	}

	app.Connector = broker.NewConnector(broker.ConnectorConfig{
		URL:       cfg.Broker.URL(),
		ClientID:  cfg.Broker.ClientID,
		Reconnect: cfg.Reconnect,
	}, broker.NewWSTransport(), logger)
	app.Monitor = broker.NewMonitor(cfg.Heartbeat, app.Connector, logger)
	app.Market = marketdata.NewService(app.Connector, app.Contracts, logger)
	app.Orders = orders.NewService(cfg.Orders, app.Connector, app.Market, app.Contracts, app.Store, logger)

	app.Notifier = notify.NewMultiNotifier(cfg.Notify)

	sim := executor.NewSimulatedExecutor(app.Market, app.Contracts, app.Store, logger)
	paper := executor.NewBrokerExecutor(models.ModePaper, app.Orders, app.Market, app.Contracts, app.Store, logger)
	live := executor.NewBrokerExecutor(models.ModeLive, app.Orders, app.Market, app.Contracts, app.Store, logger)
	// External risk-manager and compliance gates are supplied by the
	// embedding bot; the CLI runs without them.
	app.Engine = engine.NewEngine(cfg, app.Connector, app.Market, app.Contracts, app.Store, sim, paper, live, engine.Gates{}, logger)

	return app
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("Forex Trader v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Broker")
	output.Printf("  Gateway:          %s\n", cfg.Broker.URL())
	output.Printf("  Client ID:        %d\n", cfg.Broker.ClientID)
	output.Println()

	output.Bold("Reconnection")
	output.Printf("  Enabled:          %v\n", cfg.Reconnect.Enabled)
	output.Printf("  Initial delay:    %s\n", cfg.Reconnect.InitialDelay())
	output.Printf("  Max delay:        %s\n", cfg.Reconnect.MaxDelay())
	output.Printf("  Multiplier:       %.1f\n", cfg.Reconnect.BackoffMultiplier)
	output.Printf("  Max attempts:     %d\n", cfg.Reconnect.MaxAttempts)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Mode:             %s\n", cfg.Trading.Mode)
	output.Printf("  Live allowed:     %v\n", cfg.Trading.AllowLive)
	output.Printf("  Allowed pairs:    %v\n", cfg.Risk.AllowedPairs)
	output.Println()

	output.Bold("Risk")
	output.Printf("  Risk per trade:   %.1f%%\n", cfg.Risk.RiskPercent)
	output.Printf("  Max daily loss:   %.1f%%\n", cfg.Risk.MaxDailyLossPercent)
	output.Printf("  Max daily trades: %d\n", cfg.Risk.MaxDailyTrades)
	output.Printf("  Trailing stop:    %.1f pips\n", cfg.Risk.TrailingStopPips)
	output.Println()

	output.Bold("Orders")
	output.Printf("  Retry attempts:   %d\n", cfg.Orders.RetryMaxAttempts)
	output.Printf("  Fill timeout:     %s\n", cfg.Orders.FillTimeout())
	output.Printf("  Max spread:       %.1f pips\n", cfg.Orders.MaxSpreadPips)
	output.Printf("  Max slippage:     %.1f pips\n", cfg.Orders.MaxSlippagePips)
}
