package executor

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"forex-trader/internal/config"
	"forex-trader/internal/contract"
	"forex-trader/internal/models"
)

// Property: For any sequence of prices, a buy's trailing stop never moves
// down and a sell's never moves up, whatever order the prices arrive in.
func TestProperty_TrailingStopNeverLoosens(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	con, err := contract.NewResolver().Resolve("EUR/USD")
	if err != nil {
		t.Fatalf("Resolve(EUR/USD) error: %v", err)
	}

	priceGen := gen.Float64Range(1.0500, 1.1500)

	properties.Property("buy trailing stop is monotone non-decreasing", prop.ForAll(
		func(prices []float64, trailingPips float64) bool {
			trade := &models.Trade{
				ID: "p", Pair: "EUR/USD", Direction: models.DirectionBuy,
				EntryPrice: 1.1000, StopLoss: 1.0900, Status: models.TradeOpen,
			}
			prev := trade.TrailingStop
			for _, price := range prices {
				UpdateTrailingStop(trade, price, trailingPips, con)
				if trade.TrailingStop < prev {
					return false
				}
				prev = trade.TrailingStop
			}
			return true
		},
		gen.SliceOf(priceGen),
		gen.Float64Range(5, 50),
	))

	properties.Property("sell trailing stop is monotone non-increasing once set", prop.ForAll(
		func(prices []float64, trailingPips float64) bool {
			trade := &models.Trade{
				ID: "p", Pair: "EUR/USD", Direction: models.DirectionSell,
				EntryPrice: 1.1000, StopLoss: 1.1100, Status: models.TradeOpen,
			}
			prev := 0.0
			for _, price := range prices {
				UpdateTrailingStop(trade, price, trailingPips, con)
				if prev != 0 && trade.TrailingStop > prev {
					return false
				}
				prev = trade.TrailingStop
			}
			return true
		},
		gen.SliceOf(priceGen),
		gen.Float64Range(5, 50),
	))

	properties.TestingRun(t)
}

// Property: For any entry, stop and balance inside sane forex ranges, the
// computed size never risks more than the configured fraction of the
// balance once snapped to the lot step.
func TestProperty_ComputedSizeRespectsRiskBudget(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	con, err := contract.NewResolver().Resolve("EUR/USD")
	if err != nil {
		t.Fatalf("Resolve(EUR/USD) error: %v", err)
	}
	risk := config.RiskConfig{RiskPercent: 1.0, MinStopPips: 5, MaxStopPips: 200}

	properties.Property("risk at stop never exceeds the budget", prop.ForAll(
		func(balance float64, stopPips float64) bool {
			entry := 1.1000
			stop := entry - con.PipsToPrice(stopPips)
			intent := models.TradeIntent{
				Pair: "EUR/USD", Direction: models.DirectionBuy,
				EntryPrice: entry, StopLoss: stop, TakeProfit: entry + 0.0100,
			}
			lots, err := ComputeLots(balance, intent, con, risk, config.PositionLimits{})
			if err != nil {
				// Sizing below the contract minimum is a rejection, not a
				// property violation.
				return true
			}
			riskAtStop := stopPips * con.PipValue(lots)
			budget := balance * risk.RiskPercent / 100
			return riskAtStop <= budget*1.000001
		},
		gen.Float64Range(1000, 1000000),
		gen.Float64Range(5, 200),
	))

	properties.TestingRun(t)
}
