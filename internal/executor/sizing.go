package executor

import (
	"math"

	"forex-trader/internal/config"
	"forex-trader/internal/contract"
	"forex-trader/internal/errors"
	"forex-trader/internal/models"
)

// ValidateStops checks an intent's stop distance against the risk policy.
// A zero stop loss is rejected outright; there is no unstopped sizing.
func ValidateStops(intent models.TradeIntent, con contract.Contract, risk config.RiskConfig) error {
	if intent.StopLoss <= 0 {
		return errors.NewRiskError("stop_loss", 0, risk.MinStopPips, "trade intent has no stop loss")
	}
	stopPips := con.PriceToPips(math.Abs(intent.EntryPrice - intent.StopLoss))
	if risk.MinStopPips > 0 && stopPips < risk.MinStopPips {
		return errors.NewRiskError("min_stop_pips", stopPips, risk.MinStopPips, "stop distance too tight")
	}
	if risk.MaxStopPips > 0 && stopPips > risk.MaxStopPips {
		return errors.NewRiskError("max_stop_pips", stopPips, risk.MaxStopPips, "stop distance too wide")
	}
	if intent.Direction == models.DirectionBuy && intent.StopLoss >= intent.EntryPrice {
		return errors.NewRiskError("stop_loss", intent.StopLoss, intent.EntryPrice, "buy stop loss must be below entry")
	}
	if intent.Direction == models.DirectionSell && intent.StopLoss <= intent.EntryPrice {
		return errors.NewRiskError("stop_loss", intent.StopLoss, intent.EntryPrice, "sell stop loss must be above entry")
	}
	return nil
}

// ComputeLots sizes a position so that the stop-loss distance risks
// balance * riskPercent. The result is snapped to the contract's lot step
// and clamped to the mode's lot ceiling; a size below the contract minimum
// returns zero.
func ComputeLots(balance float64, intent models.TradeIntent, con contract.Contract, risk config.RiskConfig, limits config.PositionLimits) (float64, error) {
	if balance <= 0 {
		return 0, errors.NewRiskError("balance", balance, 0, "account balance unavailable")
	}
	if err := ValidateStops(intent, con, risk); err != nil {
		return 0, err
	}

	stopPips := con.PriceToPips(math.Abs(intent.EntryPrice - intent.StopLoss))
	riskAmount := balance * risk.RiskPercent / 100
	pipValuePerLot := con.PipValue(1)
	if pipValuePerLot <= 0 {
		return 0, errors.Wrapf(errors.ErrUnknownPair, "no pip value for %s", con.Pair)
	}

	lots := riskAmount / (stopPips * pipValuePerLot)
	if limits.MaxLotSize > 0 && lots > limits.MaxLotSize {
		lots = limits.MaxLotSize
	}
	lots = con.RoundLots(lots)
	if lots <= 0 {
		return 0, errors.NewRiskError("lot_size", lots, con.MinLot, "risk budget sizes below minimum lot")
	}
	return lots, nil
}

// ProfitPips returns the signed profit of a position in pips.
func ProfitPips(direction models.Direction, entry, exit float64, con contract.Contract) float64 {
	delta := exit - entry
	if direction == models.DirectionSell {
		delta = -delta
	}
	return con.PriceToPips(delta)
}

// Profit returns the signed quote-currency profit for the given size.
func Profit(direction models.Direction, entry, exit, lots float64, con contract.Contract) float64 {
	return ProfitPips(direction, entry, exit, con) * con.PipValue(lots)
}
