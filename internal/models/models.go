// Package models provides domain models for the trading application.
package models

import (
	"time"
)

// Pair is a currency pair in "BASE/QUOTE" notation, e.g. "EUR/USD".
type Pair string

// Base returns the base currency of the pair.
func (p Pair) Base() string {
	if len(p) >= 3 {
		return string(p[:3])
	}
	return string(p)
}

// Quote returns the quote currency of the pair.
func (p Pair) Quote() string {
	if len(p) == 7 {
		return string(p[4:])
	}
	return ""
}

// Direction represents the side of a trade or order.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the closing direction for this direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// ExecutionMode selects which executor handles trades.
type ExecutionMode string

const (
	ModeSimulation ExecutionMode = "SIMULATION"
	ModePaper      ExecutionMode = "PAPER"
	ModeLive       ExecutionMode = "LIVE"
)

// RequiresBroker reports whether the mode needs a live broker session.
func (m ExecutionMode) RequiresBroker() bool {
	return m == ModePaper || m == ModeLive
}

// ConnectionState is the broker session state machine.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
	StateError        ConnectionState = "ERROR"
)

// HealthStatus classifies broker connection health.
type HealthStatus string

const (
	HealthHealthy      HealthStatus = "HEALTHY"
	HealthDegraded     HealthStatus = "DEGRADED"
	HealthUnhealthy    HealthStatus = "UNHEALTHY"
	HealthDisconnected HealthStatus = "DISCONNECTED"
)

// Tick represents a real-time price update for a pair.
type Tick struct {
	Pair      Pair
	Bid       float64
	Ask       float64
	Last      float64
	BidSize   int64
	AskSize   int64
	Timestamp time.Time
}

// Quote is the latest cached market snapshot for a pair.
type Quote struct {
	Pair      Pair
	Bid       float64
	Ask       float64
	Last      float64
	UpdatedAt time.Time
}

// Mid returns the bid/ask midpoint, falling back to the last price.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// AccountValue is a single account metric reported by the broker.
type AccountValue struct {
	Key       string
	Value     float64
	Currency  string
	UpdatedAt time.Time
}

// Position is a broker-reported open position.
type Position struct {
	Pair         Pair
	Units        float64
	AveragePrice float64
	UnrealizedPL float64
	UpdatedAt    time.Time
}

// TradeIntent is the trade request produced by the prediction layer.
type TradeIntent struct {
	Pair       Pair
	Direction  Direction
	Confidence float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Reasoning  string
}
