package models

import "time"

// TradeStatus represents the lifecycle of a local trade record.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
	TradeFailed TradeStatus = "FAILED"
)

// CloseReason explains why a trade was closed.
type CloseReason string

const (
	CloseStopLoss    CloseReason = "STOP_LOSS"
	CloseTakeProfit  CloseReason = "TAKE_PROFIT"
	CloseManual      CloseReason = "MANUAL"
	CloseAll         CloseReason = "CLOSE_ALL"
	CloseBrokerError CloseReason = "BROKER_ERROR"
)

// Trade is the locally-owned record of an open or closed position.
type Trade struct {
	ID           string
	Pair         Pair
	Direction    Direction
	Lots         float64
	EntryPrice   float64
	ExitPrice    float64
	StopLoss     float64
	TakeProfit   float64
	TrailingStop float64 // effective trailing stop; 0 when inactive
	Status       TradeStatus
	CloseReason  CloseReason
	PnL          float64
	PnLPips      float64
	Confidence   float64
	Reasoning    string
	Mode         ExecutionMode
	Simulated    bool // true when filled by the simulated executor
	OrderIDs     []int64
	OpenedAt     time.Time
	ClosedAt     time.Time
	UpdatedAt    time.Time
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// EffectiveStop returns the stop price currently in force: the trailing
// stop when it is tighter than the original stop loss.
func (t *Trade) EffectiveStop() float64 {
	if t.TrailingStop == 0 {
		return t.StopLoss
	}
	if t.Direction == DirectionBuy {
		if t.TrailingStop > t.StopLoss {
			return t.TrailingStop
		}
	} else {
		if t.StopLoss == 0 || t.TrailingStop < t.StopLoss {
			return t.TrailingStop
		}
	}
	return t.StopLoss
}
