// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"forex-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Broker    BrokerConfig    `mapstructure:"broker"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Orders    OrderConfig     `mapstructure:"orders"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Notify    NotifyConfig    `mapstructure:"notifications"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// BrokerConfig holds the brokerage gateway endpoint.
type BrokerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	ClientID int    `mapstructure:"client_id"`
}

// URL returns the websocket endpoint for the gateway.
func (b BrokerConfig) URL() string {
	return fmt.Sprintf("ws://%s:%d/ws", b.Host, b.Port)
}

// ReconnectConfig controls the connector's automatic reconnection.
type ReconnectConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
}

// InitialDelay returns the first reconnect delay.
func (r ReconnectConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the reconnect delay ceiling.
func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// HeartbeatConfig controls the connection monitor.
type HeartbeatConfig struct {
	IntervalMs             int `mapstructure:"interval_ms"`
	TimeoutMs              int `mapstructure:"timeout_ms"`
	DegradedThresholdMs    int `mapstructure:"degraded_threshold_ms"`
	UnhealthyThresholdMs   int `mapstructure:"unhealthy_threshold_ms"`
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
}

// Interval returns the heartbeat probe interval.
func (h HeartbeatConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMs) * time.Millisecond
}

// Timeout returns the probe timeout.
func (h HeartbeatConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

// DegradedThreshold returns the elapsed time after which health degrades.
func (h HeartbeatConfig) DegradedThreshold() time.Duration {
	return time.Duration(h.DegradedThresholdMs) * time.Millisecond
}

// UnhealthyThreshold returns the elapsed time after which health is unhealthy.
func (h HeartbeatConfig) UnhealthyThreshold() time.Duration {
	return time.Duration(h.UnhealthyThresholdMs) * time.Millisecond
}

// TradingConfig selects the execution mode.
type TradingConfig struct {
	Mode      string `mapstructure:"mode"` // SIMULATION, PAPER, LIVE
	AllowLive bool   `mapstructure:"allow_live"`
}

// ExecutionMode returns the configured mode as a typed value.
func (t TradingConfig) ExecutionMode() models.ExecutionMode {
	return models.ExecutionMode(t.Mode)
}

// OrderConfig controls order placement behaviour.
type OrderConfig struct {
	RetryMaxAttempts int                `mapstructure:"retry_max_attempts"`
	RetryBaseDelayMs int                `mapstructure:"retry_base_delay_ms"`
	FillTimeoutMs    int                `mapstructure:"fill_timeout_ms"`
	MaxSpreadPips    float64            `mapstructure:"max_spread_pips"`
	PairSpreadPips   map[string]float64 `mapstructure:"pair_spread_pips"`
	MaxSlippagePips  float64            `mapstructure:"max_slippage_pips"`
}

// RetryBaseDelay returns the base retry delay.
func (o OrderConfig) RetryBaseDelay() time.Duration {
	return time.Duration(o.RetryBaseDelayMs) * time.Millisecond
}

// FillTimeout returns the optimistic fill-resolution window.
func (o OrderConfig) FillTimeout() time.Duration {
	return time.Duration(o.FillTimeoutMs) * time.Millisecond
}

// SpreadLimit returns the maximum acceptable spread in pips for a pair,
// preferring the per-pair override over the global default.
func (o OrderConfig) SpreadLimit(pair string) float64 {
	if v, ok := o.PairSpreadPips[pair]; ok {
		return v
	}
	return o.MaxSpreadPips
}

// RiskConfig holds the trade-admission policy settings.
type RiskConfig struct {
	RiskPercent         float64      `mapstructure:"risk_percent"`
	MaxDailyLossPercent float64      `mapstructure:"max_daily_loss_percent"`
	MaxDailyTrades      int          `mapstructure:"max_daily_trades"`
	AllowedPairs        []string     `mapstructure:"allowed_pairs"`
	MinStopPips         float64      `mapstructure:"min_stop_pips"`
	MaxStopPips         float64      `mapstructure:"max_stop_pips"`
	TrailingStopPips    float64      `mapstructure:"trailing_stop_pips"`
	TradingHours        TradingHours `mapstructure:"trading_hours"`
}

// TradingHours is a same-day [start, end) UTC-hour window. Start 0 and
// end 24 (or 0) disables the check.
type TradingHours struct {
	StartHour int `mapstructure:"start_hour"`
	EndHour   int `mapstructure:"end_hour"`
}

// Disabled reports whether the window accepts all hours.
func (h TradingHours) Disabled() bool {
	return h.StartHour == 0 && (h.EndHour == 0 || h.EndHour == 24)
}

// Contains reports whether the given UTC hour falls inside the window.
func (h TradingHours) Contains(hour int) bool {
	if h.Disabled() {
		return true
	}
	return hour >= h.StartHour && hour < h.EndHour
}

// PairAllowed reports whether the pair is in the allow-list. An empty list
// allows nothing.
func (r RiskConfig) PairAllowed(pair string) bool {
	for _, p := range r.AllowedPairs {
		if p == pair {
			return true
		}
	}
	return false
}

// PositionLimits bounds position sizing for one execution mode.
type PositionLimits struct {
	MaxLotSize             float64 `mapstructure:"max_lot_size"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
}

// LimitsConfig holds per-mode position limits.
type LimitsConfig struct {
	Simulation PositionLimits `mapstructure:"simulation"`
	Paper      PositionLimits `mapstructure:"paper"`
	Live       PositionLimits `mapstructure:"live"`
}

// ForMode returns the limits for the given execution mode.
func (l LimitsConfig) ForMode(mode models.ExecutionMode) PositionLimits {
	switch mode {
	case models.ModeLive:
		return l.Live
	case models.ModePaper:
		return l.Paper
	default:
		return l.Simulation
	}
}

// NotifyConfig holds operator notification settings.
type NotifyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/forex-trader"
	}
	return filepath.Join(home, ".config", "forex-trader")
}

// Load loads configuration from the specified directory. If configDir is
// empty, the default config directory is used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		// Missing file is fine: defaults plus env overrides still apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker.host", "127.0.0.1")
	v.SetDefault("broker.port", 7497)
	v.SetDefault("broker.client_id", 1)

	v.SetDefault("reconnect.enabled", true)
	v.SetDefault("reconnect.initial_delay_ms", 1000)
	v.SetDefault("reconnect.max_delay_ms", 60000)
	v.SetDefault("reconnect.backoff_multiplier", 2.0)
	v.SetDefault("reconnect.max_attempts", 10)

	v.SetDefault("heartbeat.interval_ms", 30000)
	v.SetDefault("heartbeat.timeout_ms", 10000)
	v.SetDefault("heartbeat.degraded_threshold_ms", 60000)
	v.SetDefault("heartbeat.unhealthy_threshold_ms", 120000)
	v.SetDefault("heartbeat.max_consecutive_failures", 3)

	v.SetDefault("trading.mode", string(models.ModeSimulation))
	v.SetDefault("trading.allow_live", false)

	v.SetDefault("orders.retry_max_attempts", 3)
	v.SetDefault("orders.retry_base_delay_ms", 1000)
	v.SetDefault("orders.fill_timeout_ms", 5000)
	v.SetDefault("orders.max_spread_pips", 3.0)
	v.SetDefault("orders.max_slippage_pips", 5.0)

	v.SetDefault("risk.risk_percent", 1.0)
	v.SetDefault("risk.max_daily_loss_percent", 3.0)
	v.SetDefault("risk.max_daily_trades", 10)
	v.SetDefault("risk.allowed_pairs", []string{"EUR/USD", "GBP/USD", "USD/JPY", "AUD/USD"})
	v.SetDefault("risk.min_stop_pips", 5.0)
	v.SetDefault("risk.max_stop_pips", 200.0)
	v.SetDefault("risk.trailing_stop_pips", 20.0)
	v.SetDefault("risk.trading_hours.start_hour", 0)
	v.SetDefault("risk.trading_hours.end_hour", 24)

	v.SetDefault("limits.simulation.max_lot_size", 10.0)
	v.SetDefault("limits.simulation.max_concurrent_positions", 10)
	v.SetDefault("limits.paper.max_lot_size", 1.0)
	v.SetDefault("limits.paper.max_concurrent_positions", 5)
	v.SetDefault("limits.live.max_lot_size", 0.5)
	v.SetDefault("limits.live.max_concurrent_positions", 3)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.webhook.enabled", false)

	v.SetDefault("database.path", filepath.Join(DefaultConfigDir(), "trader.db"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("BROKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = p
		}
	}
	if v := os.Getenv("BROKER_CLIENT_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Broker.ClientID = id
		}
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("ALLOW_LIVE_TRADING"); v != "" {
		cfg.Trading.AllowLive = v == "true" || v == "1"
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch models.ExecutionMode(c.Trading.Mode) {
	case models.ModeSimulation, models.ModePaper, models.ModeLive:
	default:
		return fmt.Errorf("invalid trading mode: %s (must be SIMULATION, PAPER or LIVE)", c.Trading.Mode)
	}

	if c.Reconnect.BackoffMultiplier < 1 {
		return fmt.Errorf("reconnect.backoff_multiplier must be >= 1")
	}
	if c.Reconnect.InitialDelayMs <= 0 || c.Reconnect.MaxDelayMs < c.Reconnect.InitialDelayMs {
		return fmt.Errorf("reconnect delays must satisfy 0 < initial_delay_ms <= max_delay_ms")
	}
	if c.Heartbeat.IntervalMs <= 0 || c.Heartbeat.TimeoutMs <= 0 {
		return fmt.Errorf("heartbeat interval_ms and timeout_ms must be positive")
	}
	if c.Heartbeat.UnhealthyThresholdMs < c.Heartbeat.DegradedThresholdMs {
		return fmt.Errorf("heartbeat.unhealthy_threshold_ms must be >= degraded_threshold_ms")
	}
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 100 {
		return fmt.Errorf("risk.risk_percent must be in (0, 100]")
	}
	if c.Risk.MaxDailyLossPercent < 0 || c.Risk.MaxDailyLossPercent > 100 {
		return fmt.Errorf("risk.max_daily_loss_percent must be in [0, 100]")
	}
	if h := c.Risk.TradingHours; h.StartHour < 0 || h.StartHour > 23 || h.EndHour < 0 || h.EndHour > 24 {
		return fmt.Errorf("risk.trading_hours must be within a UTC day")
	}
	return nil
}

// IsLiveAllowed reports whether live trading may be entered.
func (c *Config) IsLiveAllowed() bool {
	return c.Trading.AllowLive
}
