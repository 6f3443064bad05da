package executor

import (
	"forex-trader/internal/contract"
	"forex-trader/internal/models"
)

// UpdateTrailingStop ratchets the trade's trailing stop behind the current
// price. The stop only ever tightens: a buy's trailing stop never moves
// down, a sell's never moves up. Returns true when the stop moved.
func UpdateTrailingStop(t *models.Trade, price float64, trailingPips float64, con contract.Contract) bool {
	if trailingPips <= 0 || price <= 0 || !t.IsOpen() {
		return false
	}
	distance := con.PipsToPrice(trailingPips)

	if t.Direction == models.DirectionBuy {
		candidate := price - distance
		if candidate > t.TrailingStop && candidate > t.EntryPrice-distance {
			t.TrailingStop = candidate
			return true
		}
		return false
	}

	candidate := price + distance
	if t.TrailingStop == 0 || candidate < t.TrailingStop {
		t.TrailingStop = candidate
		return true
	}
	return false
}

// CheckExit evaluates the trade's stop and target against the quote. It
// returns the close reason and exit price when an exit level is breached.
// Buys exit on the bid, sells on the ask.
func CheckExit(t *models.Trade, quote models.Quote) (models.CloseReason, float64, bool) {
	if !t.IsOpen() {
		return "", 0, false
	}

	if t.Direction == models.DirectionBuy {
		price := quote.Bid
		if price <= 0 {
			return "", 0, false
		}
		if stop := t.EffectiveStop(); stop > 0 && price <= stop {
			return models.CloseStopLoss, price, true
		}
		if t.TakeProfit > 0 && price >= t.TakeProfit {
			return models.CloseTakeProfit, price, true
		}
		return "", 0, false
	}

	price := quote.Ask
	if price <= 0 {
		return "", 0, false
	}
	if stop := t.EffectiveStop(); stop > 0 && price >= stop {
		return models.CloseStopLoss, price, true
	}
	if t.TakeProfit > 0 && price <= t.TakeProfit {
		return models.CloseTakeProfit, price, true
	}
	return "", 0, false
}
