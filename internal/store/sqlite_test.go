package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"forex-trader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trader.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrade(id string, pair models.Pair) *models.Trade {
	now := time.Now().UTC()
	return &models.Trade{
		ID: id, Pair: pair, Direction: models.DirectionBuy,
		Lots: 0.1, EntryPrice: 1.1000, StopLoss: 1.0950, TakeProfit: 1.1100,
		Status: models.TradeOpen, Mode: models.ModeSimulation, Simulated: true,
		OrderIDs: []int64{101, 102},
		OpenedAt: now, UpdatedAt: now,
	}
}

func TestTradeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade := sampleTrade("t1", "EUR/USD")
	if err := s.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("CreateTrade() error: %v", err)
	}

	got, err := s.GetTrade(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTrade() error: %v", err)
	}
	if got.Pair != "EUR/USD" || got.Direction != models.DirectionBuy {
		t.Errorf("trade = %+v, fields do not round-trip", got)
	}
	if got.EntryPrice != 1.1000 || got.StopLoss != 1.0950 {
		t.Errorf("prices = %v/%v, want 1.1000/1.0950", got.EntryPrice, got.StopLoss)
	}
	if !got.Simulated {
		t.Error("simulated flag lost")
	}
	if len(got.OrderIDs) != 2 || got.OrderIDs[0] != 101 {
		t.Errorf("order ids = %v, want [101 102]", got.OrderIDs)
	}
	if !got.IsOpen() {
		t.Errorf("status = %s, want OPEN", got.Status)
	}
}

func TestGetTradeMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetTrade(context.Background(), "nope"); err == nil {
		t.Error("GetTrade() found a trade that was never created")
	}
}

func TestOpenTradeQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateTrade(ctx, sampleTrade("t1", "EUR/USD"))
	s.CreateTrade(ctx, sampleTrade("t2", "GBP/USD"))

	open, err := s.GetOpenTrades(ctx)
	if err != nil {
		t.Fatalf("GetOpenTrades() error: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open trades = %d, want 2", len(open))
	}

	n, err := s.CountOpenTrades(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountOpenTrades() = %d, %v, want 2", n, err)
	}

	has, err := s.HasOpenTrade(ctx, "EUR/USD")
	if err != nil || !has {
		t.Errorf("HasOpenTrade(EUR/USD) = %v, %v, want true", has, err)
	}
	has, err = s.HasOpenTrade(ctx, "USD/JPY")
	if err != nil || has {
		t.Errorf("HasOpenTrade(USD/JPY) = %v, %v, want false", has, err)
	}
}

func TestCloseTradeUpdatesCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade := sampleTrade("t1", "EUR/USD")
	if err := s.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("CreateTrade() error: %v", err)
	}

	trade.Status = models.TradeClosed
	trade.CloseReason = models.CloseManual
	trade.ExitPrice = 1.1050
	trade.PnL = 50
	trade.PnLPips = 50
	trade.ClosedAt = time.Now().UTC()
	if err := s.CloseTrade(ctx, trade); err != nil {
		t.Fatalf("CloseTrade() error: %v", err)
	}

	if n, _ := s.CountOpenTrades(ctx); n != 0 {
		t.Errorf("CountOpenTrades() = %d after close, want 0", n)
	}
	if n, _ := s.CountTradesToday(ctx); n != 1 {
		t.Errorf("CountTradesToday() = %d, want 1", n)
	}
	pnl, err := s.RealizedPnLToday(ctx)
	if err != nil {
		t.Fatalf("RealizedPnLToday() error: %v", err)
	}
	if pnl != 50 {
		t.Errorf("RealizedPnLToday() = %v, want 50", pnl)
	}

	got, err := s.GetTrade(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTrade() error: %v", err)
	}
	if got.Status != models.TradeClosed || got.CloseReason != models.CloseManual {
		t.Errorf("closed trade = %s/%s, want CLOSED/MANUAL", got.Status, got.CloseReason)
	}
}

func TestSaveOrderUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order := &models.Order{
		ID: 500, Pair: "EUR/USD", Direction: models.DirectionBuy,
		Kind: models.OrderKindMarket, Lots: 0.1, Units: 10000,
		Status: models.OrderSubmitted, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.SaveOrder(ctx, order); err != nil {
		t.Fatalf("SaveOrder() error: %v", err)
	}

	// Saving the same id again must replace, not fail.
	order.Status = models.OrderFilled
	order.AvgFillPrice = 1.1001
	if err := s.SaveOrder(ctx, order); err != nil {
		t.Fatalf("SaveOrder() upsert error: %v", err)
	}
}

func TestUpdateOrderRewritesMutableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order := &models.Order{
		ID: 501, Pair: "EUR/USD", Direction: models.DirectionBuy,
		Kind: models.OrderKindMarket, Lots: 0.1, Units: 10000,
		Status: models.OrderPending, TradeID: "trade-7",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.SaveOrder(ctx, order); err != nil {
		t.Fatalf("SaveOrder() error: %v", err)
	}

	order.Status = models.OrderFilled
	order.FilledUnits = 10000
	order.AvgFillPrice = 1.1001
	if err := s.UpdateOrder(ctx, order); err != nil {
		t.Fatalf("UpdateOrder() error: %v", err)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing keys read as empty, not as errors.
	v, err := s.GetSetting(ctx, "trading_mode")
	if err != nil {
		t.Fatalf("GetSetting() error: %v", err)
	}
	if v != "" {
		t.Errorf("GetSetting(missing) = %q, want empty", v)
	}

	if err := s.SetSetting(ctx, "trading_mode", "PAPER"); err != nil {
		t.Fatalf("SetSetting() error: %v", err)
	}
	if err := s.SetSetting(ctx, "trading_mode", "LIVE"); err != nil {
		t.Fatalf("SetSetting() overwrite error: %v", err)
	}

	v, err = s.GetSetting(ctx, "trading_mode")
	if err != nil || v != "LIVE" {
		t.Errorf("GetSetting() = %q, %v, want LIVE", v, err)
	}

	all, err := s.GetAllSettings(ctx)
	if err != nil {
		t.Fatalf("GetAllSettings() error: %v", err)
	}
	if all["trading_mode"] != "LIVE" {
		t.Errorf("GetAllSettings() = %v, want trading_mode=LIVE", all)
	}
}

func TestLogActivity(t *testing.T) {
	s := newTestStore(t)
	if err := s.LogActivity(context.Background(), "info", "engine", "started"); err != nil {
		t.Fatalf("LogActivity() error: %v", err)
	}
}
