package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-trader/internal/contract"
	"forex-trader/internal/errors"
	"forex-trader/internal/models"
	"forex-trader/internal/store"
)

// SimulatedExecutor fills trades instantly against cached quotes. No broker
// session is involved; it is the fallback path when the gateway is down.
type SimulatedExecutor struct {
	quotes    QuoteSource
	contracts *contract.Resolver
	db        store.DataStore
	log       zerolog.Logger
}

// NewSimulatedExecutor creates a simulated executor.
func NewSimulatedExecutor(quotes QuoteSource, contracts *contract.Resolver, db store.DataStore, logger zerolog.Logger) *SimulatedExecutor {
	return &SimulatedExecutor{
		quotes:    quotes,
		contracts: contracts,
		db:        db,
		log:       logger.With().Str("component", "sim-executor").Logger(),
	}
}

// Mode returns SIMULATION.
func (e *SimulatedExecutor) Mode() models.ExecutionMode {
	return models.ModeSimulation
}

// ExecuteTrade opens a simulated position at the current quote, falling
// back to the intent's entry price when no quote is cached.
func (e *SimulatedExecutor) ExecuteTrade(ctx context.Context, intent models.TradeIntent, lots float64) (*models.Trade, error) {
	entry := intent.EntryPrice
	if quote, ok := e.quotes.Quote(intent.Pair); ok {
		if intent.Direction == models.DirectionBuy && quote.Ask > 0 {
			entry = quote.Ask
		} else if intent.Direction == models.DirectionSell && quote.Bid > 0 {
			entry = quote.Bid
		}
	}
	if entry <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "no price available for %s", intent.Pair)
	}

	now := time.Now()
	trade := &models.Trade{
		ID:         uuid.New().String(),
		Pair:       intent.Pair,
		Direction:  intent.Direction,
		Lots:       lots,
		EntryPrice: entry,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Status:     models.TradeOpen,
		Confidence: intent.Confidence,
		Reasoning:  intent.Reasoning,
		Mode:       models.ModeSimulation,
		Simulated:  true,
		OpenedAt:   now,
		UpdatedAt:  now,
	}

	if e.db != nil {
		if err := e.db.CreateTrade(ctx, trade); err != nil {
			return nil, errors.Wrap(errors.ErrDatabaseError, err.Error())
		}
	}
	e.log.Info().
		Str("trade_id", trade.ID).
		Str("pair", string(trade.Pair)).
		Str("direction", string(trade.Direction)).
		Float64("lots", lots).
		Float64("entry", entry).
		Msg("Simulated trade opened")
	return trade, nil
}

// CloseTrade closes a simulated position. When price is zero the exit is
// taken from the current quote.
func (e *SimulatedExecutor) CloseTrade(ctx context.Context, trade *models.Trade, reason models.CloseReason, price float64) error {
	if !trade.IsOpen() {
		return errors.Wrapf(errors.ErrInvalidOrder, "trade %s is not open", trade.ID)
	}
	con, err := e.contracts.Resolve(trade.Pair)
	if err != nil {
		return err
	}

	exit := price
	if exit <= 0 {
		quote, ok := e.quotes.Quote(trade.Pair)
		if !ok {
			return errors.Wrapf(errors.ErrInvalidOrder, "no price available for %s", trade.Pair)
		}
		if trade.Direction == models.DirectionBuy {
			exit = quote.Bid
		} else {
			exit = quote.Ask
		}
	}
	if exit <= 0 {
		return errors.Wrapf(errors.ErrInvalidOrder, "no price available for %s", trade.Pair)
	}

	finalizeClose(trade, exit, reason, con)
	if e.db != nil {
		if err := e.db.CloseTrade(ctx, trade); err != nil {
			return errors.Wrap(errors.ErrDatabaseError, err.Error())
		}
	}
	e.log.Info().
		Str("trade_id", trade.ID).
		Str("reason", string(reason)).
		Float64("exit", exit).
		Float64("pnl", trade.PnL).
		Msg("Simulated trade closed")
	return nil
}

// finalizeClose writes the terminal fields of a closed trade.
func finalizeClose(t *models.Trade, exit float64, reason models.CloseReason, con contract.Contract) {
	now := time.Now()
	t.ExitPrice = exit
	t.PnLPips = ProfitPips(t.Direction, t.EntryPrice, exit, con)
	t.PnL = Profit(t.Direction, t.EntryPrice, exit, t.Lots, con)
	t.Status = models.TradeClosed
	t.CloseReason = reason
	t.ClosedAt = now
	t.UpdatedAt = now
}
