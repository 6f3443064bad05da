package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-trader/internal/contract"
	"forex-trader/internal/errors"
	"forex-trader/internal/models"
	"forex-trader/internal/orders"
	"forex-trader/internal/store"
)

// OrderPlacer is the slice of the order service the broker executor uses.
type OrderPlacer interface {
	PlaceMarketOrderWithRetry(ctx context.Context, pair models.Pair, dir models.Direction, lots float64, tradeID string) (*orders.Placement, error)
}

// BrokerExecutor routes trades through the broker order service. It backs
// both PAPER and LIVE modes; the gateway account decides which one a given
// session actually is.
type BrokerExecutor struct {
	mode      models.ExecutionMode
	orders    OrderPlacer
	quotes    QuoteSource
	contracts *contract.Resolver
	db        store.DataStore
	log       zerolog.Logger
}

// NewBrokerExecutor creates a broker-routed executor for the given mode.
func NewBrokerExecutor(mode models.ExecutionMode, placer OrderPlacer, quotes QuoteSource, contracts *contract.Resolver, db store.DataStore, logger zerolog.Logger) *BrokerExecutor {
	return &BrokerExecutor{
		mode:      mode,
		orders:    placer,
		quotes:    quotes,
		contracts: contracts,
		db:        db,
		log:       logger.With().Str("component", "broker-executor").Str("mode", string(mode)).Logger(),
	}
}

// Mode returns the execution mode this executor was built for.
func (e *BrokerExecutor) Mode() models.ExecutionMode {
	return e.mode
}

// ExecuteTrade opens a position by routing a market order to the gateway.
// A failed submission still produces a trade record, marked FAILED with
// zero profit, so the attempt is auditable.
func (e *BrokerExecutor) ExecuteTrade(ctx context.Context, intent models.TradeIntent, lots float64) (*models.Trade, error) {
	now := time.Now()
	trade := &models.Trade{
		ID:         uuid.New().String(),
		Pair:       intent.Pair,
		Direction:  intent.Direction,
		Lots:       lots,
		EntryPrice: intent.EntryPrice,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Status:     models.TradeOpen,
		Confidence: intent.Confidence,
		Reasoning:  intent.Reasoning,
		Mode:       e.mode,
		OpenedAt:   now,
		UpdatedAt:  now,
	}

	placement, err := e.orders.PlaceMarketOrderWithRetry(ctx, intent.Pair, intent.Direction, lots, trade.ID)
	if err != nil {
		return e.failTrade(ctx, trade, err), err
	}
	trade.OrderIDs = append(trade.OrderIDs, placement.Order.ID)

	result, err := e.awaitFill(ctx, placement)
	if err != nil {
		return e.failTrade(ctx, trade, err), err
	}
	if result.Order.AvgFillPrice > 0 {
		trade.EntryPrice = result.Order.AvgFillPrice
	}
	trade.UpdatedAt = time.Now()

	if e.db != nil {
		if err := e.db.CreateTrade(ctx, trade); err != nil {
			return trade, errors.Wrap(errors.ErrDatabaseError, err.Error())
		}
	}
	e.log.Info().
		Str("trade_id", trade.ID).
		Int64("order_id", placement.Order.ID).
		Str("pair", string(trade.Pair)).
		Float64("entry", trade.EntryPrice).
		Bool("assumed_filled", result.AssumedFilled).
		Msg("Trade opened via broker")
	return trade, nil
}

// CloseTrade closes a position with an opposite-side market order. When the
// gateway is unreachable the position is closed locally at the cached quote
// instead, flagged as simulated, so the book never carries a stuck trade.
func (e *BrokerExecutor) CloseTrade(ctx context.Context, trade *models.Trade, reason models.CloseReason, price float64) error {
	if !trade.IsOpen() {
		return errors.Wrapf(errors.ErrInvalidOrder, "trade %s is not open", trade.ID)
	}
	con, err := e.contracts.Resolve(trade.Pair)
	if err != nil {
		return err
	}

	placement, err := e.orders.PlaceMarketOrderWithRetry(ctx, trade.Pair, trade.Direction.Opposite(), trade.Lots, trade.ID)
	if err != nil {
		e.log.Warn().
			Str("trade_id", trade.ID).
			Err(err).
			Msg("Broker close failed; closing locally at cached quote")
		return e.closeLocally(ctx, trade, reason, price, con)
	}
	trade.OrderIDs = append(trade.OrderIDs, placement.Order.ID)

	result, err := e.awaitFill(ctx, placement)
	if err != nil {
		e.log.Warn().
			Str("trade_id", trade.ID).
			Err(err).
			Msg("Close order did not fill; closing locally at cached quote")
		return e.closeLocally(ctx, trade, reason, price, con)
	}

	exit := result.Order.AvgFillPrice
	if exit <= 0 {
		exit = price
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
		Msg("Trade closed via broker")
	return nil
}

// awaitFill waits for the placement's terminal fill result.
func (e *BrokerExecutor) awaitFill(ctx context.Context, placement *orders.Placement) (orders.FillResult, error) {
	select {
	case <-ctx.Done():
		return orders.FillResult{}, ctx.Err()
	case result := <-placement.Fill:
		if result.Err != nil {
			return result, result.Err
		}
		return result, nil
	}
}

// failTrade records a trade that never reached the market: FAILED, closed
// immediately at zero profit.
func (e *BrokerExecutor) failTrade(ctx context.Context, trade *models.Trade, cause error) *models.Trade {
	now := time.Now()
	trade.Status = models.TradeFailed
	trade.CloseReason = models.CloseBrokerError
	trade.PnL = 0
	trade.PnLPips = 0
	trade.ClosedAt = now
	trade.UpdatedAt = now
	if e.db != nil {
		if err := e.db.CreateTrade(ctx, trade); err != nil {
			e.log.Error().Str("trade_id", trade.ID).Err(err).Msg("Failed to persist failed trade")
		}
	}
	e.log.Error().
		Str("trade_id", trade.ID).
		Str("pair", string(trade.Pair)).
		Err(cause).
		Msg("Trade execution failed")
	return trade
}

func (e *BrokerExecutor) closeLocally(ctx context.Context, trade *models.Trade, reason models.CloseReason, price float64, con contract.Contract) error {
	exit := price
	if exit <= 0 {
		quote, ok := e.quotes.Quote(trade.Pair)
		if !ok {
			return errors.Wrapf(errors.ErrInvalidOrder, "no price available to close %s", trade.Pair)
		}
		if trade.Direction == models.DirectionBuy {
			exit = quote.Bid
		} else {
			exit = quote.Ask
		}
	}
	if exit <= 0 {
		return errors.Wrapf(errors.ErrInvalidOrder, "no price available to close %s", trade.Pair)
	}

	finalizeClose(trade, exit, reason, con)
	trade.Simulated = true
	if e.db != nil {
		if err := e.db.CloseTrade(ctx, trade); err != nil {
			return errors.Wrap(errors.ErrDatabaseError, err.Error())
		}
	}
	return nil
}
