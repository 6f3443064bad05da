// Package executor turns admitted trade intents into executed trades. The
// simulated executor fills against cached quotes; the broker executor routes
// through the order service. Position sizing and exit logic are shared so
// every mode prices risk the same way.
package executor

import (
	"context"

	"forex-trader/internal/models"
)

// TradeExecutor executes and closes trades for one execution mode.
type TradeExecutor interface {
	// Mode identifies the execution mode this executor implements.
	Mode() models.ExecutionMode

	// ExecuteTrade opens a position for the intent at the given size. A
	// non-nil trade is returned even on failure so the caller can record
	// the outcome.
	ExecuteTrade(ctx context.Context, intent models.TradeIntent, lots float64) (*models.Trade, error)

	// CloseTrade closes an open trade. When price is zero the executor
	// determines the exit price itself.
	CloseTrade(ctx context.Context, trade *models.Trade, reason models.CloseReason, price float64) error
}

// QuoteSource supplies the latest cached quote for a pair.
type QuoteSource interface {
	Quote(pair models.Pair) (models.Quote, bool)
}
