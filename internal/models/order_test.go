package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderFilled, OrderCancelled, OrderInactive, OrderError}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []OrderStatus{OrderPending, OrderSubmitted, OrderPendingCancel}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderPending, OrderSubmitted, true},
		{OrderPending, OrderFilled, true},
		{OrderPending, OrderError, true},
		{OrderSubmitted, OrderFilled, true},
		{OrderSubmitted, OrderCancelled, true},
		{OrderSubmitted, OrderPendingCancel, true},
		{OrderSubmitted, OrderInactive, true},
		{OrderPendingCancel, OrderCancelled, true},
		{OrderPendingCancel, OrderFilled, true},

		{OrderSubmitted, OrderPending, false},
		{OrderPendingCancel, OrderSubmitted, false},
		{OrderFilled, OrderCancelled, false},
		{OrderFilled, OrderSubmitted, false},
		{OrderCancelled, OrderFilled, false},
		{OrderError, OrderFilled, false},
		{OrderInactive, OrderSubmitted, false},
		{OrderPending, OrderPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// Property: applying any sequence of status updates through the transition
// guard can only ever move an order forward, and a terminal status is never
// left once reached.
func TestProperty_OrderStatusOnlyMovesForward(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	statusGen := gen.OneConstOf(
		OrderPending, OrderSubmitted, OrderPendingCancel,
		OrderFilled, OrderCancelled, OrderInactive, OrderError,
	)

	properties.Property("guarded updates never reverse the lifecycle", prop.ForAll(
		func(updates []OrderStatus) bool {
			current := OrderPending
			reachedTerminal := false
			for _, next := range updates {
				if current.CanTransition(next) {
					if reachedTerminal {
						return false
					}
					if orderStatusRank[next] <= orderStatusRank[current] {
						return false
					}
					current = next
					if current.IsTerminal() {
						reachedTerminal = true
					}
				}
			}
			return true
		},
		gen.SliceOf(statusGen),
	))

	properties.TestingRun(t)
}

func TestOrderRemainingUnits(t *testing.T) {
	o := Order{Units: 100000, FilledUnits: 60000}
	if got := o.RemainingUnits(); got != 40000 {
		t.Errorf("RemainingUnits() = %v, want 40000", got)
	}
	if o.IsFullyFilled() {
		t.Error("order with remaining units should not be fully filled")
	}

	o.FilledUnits = 100000
	if !o.IsFullyFilled() {
		t.Error("order should be fully filled")
	}
	if got := o.RemainingUnits(); got != 0 {
		t.Errorf("RemainingUnits() = %v, want 0", got)
	}
}
