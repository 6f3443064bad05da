package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir()) // no config.toml present
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Broker.Host != "127.0.0.1" || cfg.Broker.Port != 7497 {
		t.Errorf("broker defaults = %s:%d, want 127.0.0.1:7497", cfg.Broker.Host, cfg.Broker.Port)
	}
	if cfg.Trading.Mode != "SIMULATION" || cfg.Trading.AllowLive {
		t.Errorf("trading defaults = %s/allow_live=%v, want SIMULATION without live", cfg.Trading.Mode, cfg.Trading.AllowLive)
	}
	if !cfg.Reconnect.Enabled {
		t.Error("reconnection disabled by default")
	}
	if got := cfg.Reconnect.InitialDelay(); got != time.Second {
		t.Errorf("initial reconnect delay = %v, want 1s", got)
	}
	if got := cfg.Heartbeat.Interval(); got != 30*time.Second {
		t.Errorf("heartbeat interval = %v, want 30s", got)
	}
	if len(cfg.Risk.AllowedPairs) == 0 {
		t.Error("no default allowed pairs")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	toml := `
[trading]
mode = "PAPER"
allow_live = true

[orders]
max_spread_pips = 1.5

[risk]
allowed_pairs = ["EUR/USD"]
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Trading.Mode != "PAPER" || !cfg.Trading.AllowLive {
		t.Errorf("trading = %s/allow_live=%v, want PAPER with live allowed", cfg.Trading.Mode, cfg.Trading.AllowLive)
	}
	if cfg.Orders.MaxSpreadPips != 1.5 {
		t.Errorf("max spread = %v, want 1.5", cfg.Orders.MaxSpreadPips)
	}
	if len(cfg.Risk.AllowedPairs) != 1 || cfg.Risk.AllowedPairs[0] != "EUR/USD" {
		t.Errorf("allowed pairs = %v, want [EUR/USD]", cfg.Risk.AllowedPairs)
	}
	// Untouched sections keep their defaults.
	if cfg.Reconnect.MaxAttempts != 10 {
		t.Errorf("reconnect attempts = %d, want default 10", cfg.Reconnect.MaxAttempts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_MODE", "PAPER")
	t.Setenv("BROKER_PORT", "4002")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Trading.Mode != "PAPER" {
		t.Errorf("mode = %s, want PAPER from environment", cfg.Trading.Mode)
	}
	if cfg.Broker.Port != 4002 {
		t.Errorf("port = %d, want 4002 from environment", cfg.Broker.Port)
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(t.TempDir())
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Trading.Mode = "YOLO" }},
		{"backoff below one", func(c *Config) { c.Reconnect.BackoffMultiplier = 0.5 }},
		{"max delay below initial", func(c *Config) { c.Reconnect.MaxDelayMs = 1 }},
		{"zero heartbeat interval", func(c *Config) { c.Heartbeat.IntervalMs = 0 }},
		{"risk percent over 100", func(c *Config) { c.Risk.RiskPercent = 150 }},
		{"negative daily loss", func(c *Config) { c.Risk.MaxDailyLossPercent = -1 }},
		{"trading hours out of range", func(c *Config) { c.Risk.TradingHours.EndHour = 25 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid configuration")
			}
		})
	}
}

func TestTradingHoursWindow(t *testing.T) {
	h := TradingHours{StartHour: 7, EndHour: 17}
	if h.Disabled() {
		t.Error("bounded window reported as disabled")
	}
	if !h.Contains(7) || !h.Contains(16) {
		t.Error("window excludes in-range hours")
	}
	if h.Contains(17) || h.Contains(3) {
		t.Error("window includes out-of-range hours")
	}

	open := TradingHours{StartHour: 0, EndHour: 24}
	if !open.Disabled() || !open.Contains(23) {
		t.Error("full-day window should accept every hour")
	}
}
