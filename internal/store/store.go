// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"forex-trader/internal/models"
)

// DataStore defines the persistence surface the trading subsystem consumes.
// All calls are synchronous and side-effecting; callers never reason about
// the underlying schema.
type DataStore interface {
	// Trades
	CreateTrade(ctx context.Context, trade *models.Trade) error
	UpdateTrade(ctx context.Context, trade *models.Trade) error
	CloseTrade(ctx context.Context, trade *models.Trade) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	GetOpenTrades(ctx context.Context) ([]models.Trade, error)
	HasOpenTrade(ctx context.Context, pair models.Pair) (bool, error)
	CountOpenTrades(ctx context.Context) (int, error)
	CountTradesToday(ctx context.Context) (int, error)
	RealizedPnLToday(ctx context.Context) (float64, error)

	// Orders
	SaveOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error

	// Activity log
	LogActivity(ctx context.Context, level, component, message string) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)

	// Lifecycle
	Close() error
}
