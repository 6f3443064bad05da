// Package contract maps trading pairs to broker contract specifications.
package contract

import (
	"math"
	"strings"

	"forex-trader/internal/errors"
	"forex-trader/internal/models"
)

// StandardLotUnits is the number of base-currency units in one standard lot.
const StandardLotUnits = 100000

// Contract describes the broker specification for a currency pair.
type Contract struct {
	Pair          models.Pair
	Symbol        string // broker symbol, e.g. "EURUSD"
	BaseCurrency  string
	QuoteCurrency string
	PipSize       float64
	PipDecimals   int
	LotUnits      float64
	MinLot        float64
	MaxLot        float64
	LotStep       float64
}

// LotsToUnits converts a quantity in lots into broker units.
func (c Contract) LotsToUnits(lots float64) float64 {
	return lots * c.LotUnits
}

// UnitsToLots converts broker units back into lots.
func (c Contract) UnitsToLots(units float64) float64 {
	if c.LotUnits == 0 {
		return 0
	}
	return units / c.LotUnits
}

// PriceToPips converts a price delta into pips.
func (c Contract) PriceToPips(delta float64) float64 {
	if c.PipSize == 0 {
		return 0
	}
	return delta / c.PipSize
}

// PipsToPrice converts pips into a price delta.
func (c Contract) PipsToPrice(pips float64) float64 {
	return pips * c.PipSize
}

// PipValue returns the quote-currency value of one pip for the given lots.
func (c Contract) PipValue(lots float64) float64 {
	return c.LotsToUnits(lots) * c.PipSize
}

// RoundLots snaps a lot quantity onto the contract's lot step, clamped to
// [MinLot, MaxLot]. A quantity below MinLot rounds to zero.
func (c Contract) RoundLots(lots float64) float64 {
	if c.LotStep > 0 {
		lots = math.Floor(lots/c.LotStep) * c.LotStep
		// Floor arithmetic can leave 0.30000000000000004-style residue.
		lots = math.Round(lots/c.LotStep) * c.LotStep
	}
	if lots < c.MinLot {
		return 0
	}
	if lots > c.MaxLot {
		return c.MaxLot
	}
	return lots
}

// Resolver maps pair symbols to contract specifications. It is pure and
// stateless: the table is fixed at construction.
type Resolver struct {
	contracts map[models.Pair]Contract
}

// knownPairs enumerates the pairs the gateway trades.
var knownPairs = []models.Pair{
	"EUR/USD", "GBP/USD", "USD/JPY", "USD/CHF", "AUD/USD", "USD/CAD",
	"NZD/USD", "EUR/GBP", "EUR/JPY", "GBP/JPY", "AUD/JPY", "EUR/CHF",
}

// NewResolver creates a resolver with the built-in contract table.
func NewResolver() *Resolver {
	r := &Resolver{contracts: make(map[models.Pair]Contract, len(knownPairs))}
	for _, p := range knownPairs {
		r.contracts[p] = buildContract(p)
	}
	return r
}

func buildContract(pair models.Pair) Contract {
	pipSize, pipDecimals := 0.0001, 4
	if pair.Quote() == "JPY" {
		pipSize, pipDecimals = 0.01, 2
	}
	return Contract{
		Pair:          pair,
		Symbol:        strings.ReplaceAll(string(pair), "/", ""),
		BaseCurrency:  pair.Base(),
		QuoteCurrency: pair.Quote(),
		PipSize:       pipSize,
		PipDecimals:   pipDecimals,
		LotUnits:      StandardLotUnits,
		MinLot:        0.01,
		MaxLot:        100,
		LotStep:       0.01,
	}
}

// Resolve returns the contract for a pair.
func (r *Resolver) Resolve(pair models.Pair) (Contract, error) {
	c, ok := r.contracts[pair]
	if !ok {
		return Contract{}, errors.Wrapf(errors.ErrUnknownPair, "%s", pair)
	}
	return c, nil
}

// Pairs returns every pair the resolver knows, in no particular order.
func (r *Resolver) Pairs() []models.Pair {
	out := make([]models.Pair, 0, len(r.contracts))
	for p := range r.contracts {
		out = append(out, p)
	}
	return out
}
