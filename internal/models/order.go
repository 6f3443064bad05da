package models

import "time"

// OrderKind represents the type of an order.
type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

// OrderStatus is the lifecycle status of an order. Statuses only move
// forward: PENDING -> SUBMITTED -> {FILLED, CANCELLED, INACTIVE, ERROR}.
// PENDING_CANCEL is a sub-state of cancellation between SUBMITTED and
// CANCELLED.
type OrderStatus string

const (
	OrderPending       OrderStatus = "PENDING"
	OrderSubmitted     OrderStatus = "SUBMITTED"
	OrderPendingCancel OrderStatus = "PENDING_CANCEL"
	OrderFilled        OrderStatus = "FILLED"
	OrderCancelled     OrderStatus = "CANCELLED"
	OrderInactive      OrderStatus = "INACTIVE"
	OrderError         OrderStatus = "ERROR"
)

// orderStatusRank orders statuses along the lifecycle so that transitions
// can be validated as strictly forward.
var orderStatusRank = map[OrderStatus]int{
	OrderPending:       0,
	OrderSubmitted:     1,
	OrderPendingCancel: 2,
	OrderFilled:        3,
	OrderCancelled:     3,
	OrderInactive:      3,
	OrderError:         3,
}

// IsTerminal reports whether the status ends the order lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderInactive, OrderError:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a forward
// transition. Terminal statuses are never re-entered or reversed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return orderStatusRank[next] > orderStatusRank[s]
}

// Order represents a broker order. Identity is the broker-assigned integer
// id, requested from the connector before first use.
type Order struct {
	ID           int64
	Pair         Pair
	Direction    Direction
	Kind         OrderKind
	Lots         float64 // requested quantity in lots
	Units        float64 // broker-unit conversion of Lots
	LimitPrice   float64 // limit orders only
	Status       OrderStatus
	FilledUnits  float64
	AvgFillPrice float64
	TradeID      string // optional correlation to a local trade record
	ErrorCode    int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  time.Time // set when a terminal status is reached
}

// IsFullyFilled reports whether the order's units are completely filled.
func (o *Order) IsFullyFilled() bool {
	return o.Units > 0 && o.FilledUnits >= o.Units
}

// RemainingUnits returns the unfilled quantity in broker units.
func (o *Order) RemainingUnits() float64 {
	r := o.Units - o.FilledUnits
	if r < 0 {
		return 0
	}
	return r
}
