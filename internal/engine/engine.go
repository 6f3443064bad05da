// Package engine is the trading core: it owns the execution mode, admits
// trade intents against the risk policy and routes them to the right
// executor, falling back to simulation while the broker is down.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trader/internal/broker"
	"forex-trader/internal/config"
	"forex-trader/internal/contract"
	"forex-trader/internal/errors"
	"forex-trader/internal/executor"
	"forex-trader/internal/models"
	"forex-trader/internal/store"
	"forex-trader/pkg/utils"
)

const (
	defaultSimulatedBalance = 10000.0
	updateInterval          = 5 * time.Second
)

// Connection is the slice of the broker connector the engine observes.
type Connection interface {
	IsConnected() bool
	State() models.ConnectionState
	Events() *broker.Bus
}

// MarketData supplies cached quotes and the account balance.
type MarketData interface {
	Quote(pair models.Pair) (models.Quote, bool)
	Balance() float64
}

// GateFunc is an externally owned veto over a trade intent. A false result
// carries the reason the trade was refused.
type GateFunc func(intent models.TradeIntent) (bool, string)

// Gates holds the external pre-trade checks consulted before the engine's
// own admission policy. The risk gate runs first, then compliance. A nil
// gate always allows.
type Gates struct {
	Risk       GateFunc
	Compliance GateFunc
}

// Engine coordinates trade admission and execution.
type Engine struct {
	cfg       *config.Config
	conn      Connection
	market    MarketData
	contracts *contract.Resolver
	db        store.DataStore
	sim       executor.TradeExecutor
	paper     executor.TradeExecutor
	live      executor.TradeExecutor
	gates     Gates
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	mode     models.ExecutionMode
	fallback bool

	onFallback []func(active bool)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates the engine. The initial mode comes from configuration;
// entering it is still subject to SetMode's gates at startup.
func NewEngine(cfg *config.Config, conn Connection, market MarketData, contracts *contract.Resolver, db store.DataStore, sim, paper, live executor.TradeExecutor, gates Gates, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		conn:      conn,
		market:    market,
		contracts: contracts,
		db:        db,
		sim:       sim,
		paper:     paper,
		live:      live,
		gates:     gates,
		log:       logger.With().Str("component", "engine").Logger(),
		now:       time.Now,
		mode:      models.ModeSimulation,
	}
}

// StartupMode returns the mode a new session should start in: the operator's
// last persisted mode selection when one exists, else the configured default.
func StartupMode(ctx context.Context, cfg *config.Config, db store.DataStore) models.ExecutionMode {
	mode := cfg.Trading.ExecutionMode()
	if db == nil {
		return mode
	}
	saved, err := db.GetSetting(ctx, "trading_mode")
	if err != nil || saved == "" {
		return mode
	}
	switch models.ExecutionMode(saved) {
	case models.ModeSimulation, models.ModePaper, models.ModeLive:
		return models.ExecutionMode(saved)
	}
	return mode
}

// OnFallbackChange registers a listener for fallback transitions. Listeners
// must be registered before Start.
func (e *Engine) OnFallbackChange(fn func(active bool)) {
	e.onFallback = append(e.onFallback, fn)
}

// Start launches the connection watcher and the open-trade update loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	connCh, unsubConn := e.conn.Events().Subscribe(broker.EventConnected, 8)
	discCh, unsubDisc := e.conn.Events().Subscribe(broker.EventDisconnected, 8)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsubConn()
		defer unsubDisc()
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-connCh:
				if !ok {
					return
				}
				e.setFallback(false)
			case _, ok := <-discCh:
				if !ok {
					return
				}
				if e.Mode().RequiresBroker() {
					e.setFallback(true)
				}
			case <-ticker.C:
				e.UpdateOpenTrades(ctx)
			}
		}
	}()
}

// Stop shuts the engine down.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// setFallback toggles the simulation fallback. The flag is edge triggered:
// repeated connect or disconnect events do not re-fire listeners.
func (e *Engine) setFallback(active bool) {
	e.mu.Lock()
	if e.fallback == active {
		e.mu.Unlock()
		return
	}
	e.fallback = active
	e.mu.Unlock()

	if active {
		e.log.Warn().Msg("Broker connection lost; routing new trades to simulation")
	} else {
		e.log.Info().Msg("Broker connection restored; resuming broker execution")
	}
	if e.db != nil {
		msg := "fallback deactivated"
		if active {
			msg = "fallback activated, routing trades to simulation"
		}
		e.db.LogActivity(context.Background(), "WARN", "engine", msg)
	}
	for _, fn := range e.onFallback {
		fn(active)
	}
}

// Mode returns the current execution mode.
func (e *Engine) Mode() models.ExecutionMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// InFallback reports whether trades are being routed to simulation because
// the broker is down.
func (e *Engine) InFallback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallback
}

// SetMode switches the execution mode. LIVE requires the allow_live config
// gate; PAPER and LIVE require an established broker session.
func (e *Engine) SetMode(mode models.ExecutionMode) error {
	switch mode {
	case models.ModeSimulation, models.ModePaper, models.ModeLive:
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "unknown execution mode %q", mode)
	}
	if mode == models.ModeLive && !e.cfg.Trading.AllowLive {
		return errors.ErrLiveTradingDisabled
	}
	if mode.RequiresBroker() && !e.conn.IsConnected() {
		return errors.Wrapf(errors.ErrNotConnected, "cannot enter %s mode without a broker session", mode)
	}

	e.mu.Lock()
	old := e.mode
	e.mode = mode
	if !mode.RequiresBroker() {
		e.fallback = false
	}
	e.mu.Unlock()

	if old != mode {
		e.log.Info().Str("old", string(old)).Str("new", string(mode)).Msg("Execution mode changed")
		if e.db != nil {
			e.db.LogActivity(context.Background(), "INFO", "engine", "execution mode changed to "+string(mode))
		}
	}
	return nil
}

// GetExecutor returns the executor for the current mode. Broker modes fall
// back to simulation while the session is down.
func (e *Engine) GetExecutor() executor.TradeExecutor {
	e.mu.Lock()
	mode := e.mode
	fallback := e.fallback
	e.mu.Unlock()

	if mode.RequiresBroker() && (fallback || !e.conn.IsConnected()) {
		return e.sim
	}
	switch mode {
	case models.ModeLive:
		return e.live
	case models.ModePaper:
		return e.paper
	default:
		return e.sim
	}
}

// balance returns the account balance for sizing and loss limits,
// preferring the broker-reported figure.
func (e *Engine) balance() float64 {
	if b := e.market.Balance(); b > 0 {
		return b
	}
	return defaultSimulatedBalance
}

// CanOpenTrade runs the admission checks for an intent. Counters come from
// fresh store queries so concurrent trades and restarts cannot skew them.
func (e *Engine) CanOpenTrade(ctx context.Context, intent models.TradeIntent) error {
	risk := e.cfg.Risk
	if !risk.PairAllowed(string(intent.Pair)) {
		return errors.NewRiskError("allowed_pairs", 0, 0, string(intent.Pair)+" is not in the allowed pair list")
	}
	now := e.now().UTC()
	if utils.GetMarketStatus(now) == utils.MarketClosed {
		return errors.NewRiskError("market_session", 0, 0, "forex market is closed")
	}
	if !risk.TradingHours.Contains(now.Hour()) {
		return errors.NewRiskError("trading_hours", float64(now.Hour()), float64(risk.TradingHours.EndHour), "outside trading hours")
	}
	if e.db == nil {
		return nil
	}

	limits := e.cfg.Limits.ForMode(e.Mode())
	open, err := e.db.CountOpenTrades(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, err.Error())
	}
	if limits.MaxConcurrentPositions > 0 && open >= limits.MaxConcurrentPositions {
		return errors.NewRiskError("max_concurrent_positions", float64(open), float64(limits.MaxConcurrentPositions), "concurrent position limit reached")
	}

	hasOpen, err := e.db.HasOpenTrade(ctx, intent.Pair)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, err.Error())
	}
	if hasOpen {
		return errors.NewRiskError("one_per_pair", 1, 1, "a trade is already open on "+string(intent.Pair))
	}

	today, err := e.db.CountTradesToday(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, err.Error())
	}
	if risk.MaxDailyTrades > 0 && today >= risk.MaxDailyTrades {
		return errors.NewRiskError("max_daily_trades", float64(today), float64(risk.MaxDailyTrades), "daily trade limit reached")
	}

	if risk.MaxDailyLossPercent > 0 {
		pnl, err := e.db.RealizedPnLToday(ctx)
		if err != nil {
			return errors.Wrap(errors.ErrDatabaseError, err.Error())
		}
		maxLoss := e.balance() * risk.MaxDailyLossPercent / 100
		if pnl < 0 && -pnl >= maxLoss {
			return errors.NewRiskError("max_daily_loss", -pnl, maxLoss, "daily loss limit reached")
		}
	}
	return nil
}

// ExecuteTrade runs an intent through the external gates and the admission
// policy, sizes it and delegates to the mode's executor. When broker
// execution fails the trade is re-attempted once in simulation so the
// signal is not silently lost.
func (e *Engine) ExecuteTrade(ctx context.Context, intent models.TradeIntent) (*models.Trade, error) {
	if e.gates.Risk != nil {
		if ok, reason := e.gates.Risk(intent); !ok {
			return nil, errors.NewRiskError("risk_gate", 0, 0, reason)
		}
	}
	if e.gates.Compliance != nil {
		if ok, reason := e.gates.Compliance(intent); !ok {
			return nil, errors.NewRiskError("compliance_gate", 0, 0, reason)
		}
	}

	con, err := e.contracts.Resolve(intent.Pair)
	if err != nil {
		return nil, err
	}
	if err := executor.ValidateStops(intent, con, e.cfg.Risk); err != nil {
		return nil, err
	}
	if err := e.CanOpenTrade(ctx, intent); err != nil {
		return nil, err
	}

	limits := e.cfg.Limits.ForMode(e.Mode())
	lots, err := executor.ComputeLots(e.balance(), intent, con, e.cfg.Risk, limits)
	if err != nil {
		return nil, err
	}

	exec := e.GetExecutor()
	trade, err := exec.ExecuteTrade(ctx, intent, lots)
	if err != nil && exec.Mode() != models.ModeSimulation {
		e.log.Warn().
			Str("pair", string(intent.Pair)).
			Err(err).
			Msg("Broker execution failed; re-attempting in simulation")
		e.setFallback(true)
		return e.sim.ExecuteTrade(ctx, intent, lots)
	}
	return trade, err
}

// CloseTrade closes one open trade by id.
func (e *Engine) CloseTrade(ctx context.Context, tradeID string, reason models.CloseReason) error {
	if e.db == nil {
		return errors.ErrDatabaseError
	}
	trade, err := e.db.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	return e.closerFor(trade).CloseTrade(ctx, trade, reason, 0)
}

// CloseAllTrades closes every open trade, returning the first error.
func (e *Engine) CloseAllTrades(ctx context.Context) error {
	if e.db == nil {
		return nil
	}
	trades, err := e.db.GetOpenTrades(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrDatabaseError, err.Error())
	}
	var firstErr error
	for i := range trades {
		t := trades[i]
		if err := e.closerFor(&t).CloseTrade(ctx, &t, models.CloseAll, 0); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// closerFor picks the executor that should close a trade: simulated trades
// always close in simulation, broker trades close through the broker unless
// the session is down.
func (e *Engine) closerFor(trade *models.Trade) executor.TradeExecutor {
	if trade.Simulated || !trade.Mode.RequiresBroker() {
		return e.sim
	}
	if !e.conn.IsConnected() {
		return e.sim
	}
	if trade.Mode == models.ModeLive {
		return e.live
	}
	return e.paper
}

// UpdateOpenTrades refreshes trailing stops and closes trades whose exit
// levels are breached by the latest quotes.
func (e *Engine) UpdateOpenTrades(ctx context.Context) {
	if e.db == nil {
		return
	}
	trades, err := e.db.GetOpenTrades(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to load open trades")
		return
	}

	for i := range trades {
		t := trades[i]
		quote, ok := e.market.Quote(t.Pair)
		if !ok {
			continue
		}
		con, err := e.contracts.Resolve(t.Pair)
		if err != nil {
			continue
		}

		marketPrice := quote.Bid
		if t.Direction == models.DirectionSell {
			marketPrice = quote.Ask
		}
		if executor.UpdateTrailingStop(&t, marketPrice, e.cfg.Risk.TrailingStopPips, con) {
			if err := e.db.UpdateTrade(ctx, &t); err != nil {
				e.log.Error().Str("trade_id", t.ID).Err(err).Msg("Failed to persist trailing stop")
			}
		}

		if reason, exit, hit := executor.CheckExit(&t, quote); hit {
			e.log.Info().
				Str("trade_id", t.ID).
				Str("reason", string(reason)).
				Float64("price", exit).
				Msg("Exit level hit")
			if err := e.closerFor(&t).CloseTrade(ctx, &t, reason, exit); err != nil {
				e.log.Error().Str("trade_id", t.ID).Err(err).Msg("Failed to close trade on exit")
			}
		}
	}
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Mode            models.ExecutionMode
	Fallback        bool
	ConnectionState models.ConnectionState
	OpenTrades      int
	LiveAllowed     bool
}

// Status returns a snapshot for the dashboard layer.
func (e *Engine) Status(ctx context.Context) Status {
	s := Status{
		Mode:            e.Mode(),
		Fallback:        e.InFallback(),
		ConnectionState: e.conn.State(),
		LiveAllowed:     e.cfg.Trading.AllowLive,
	}
	if e.db != nil {
		if n, err := e.db.CountOpenTrades(ctx); err == nil {
			s.OpenTrades = n
		}
	}
	return s
}
