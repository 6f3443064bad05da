package contract

import (
	"math"
	"testing"

	stderrors "errors"

	"forex-trader/internal/errors"
)

func TestResolvePipSpecs(t *testing.T) {
	r := NewResolver()

	eurusd, err := r.Resolve("EUR/USD")
	if err != nil {
		t.Fatalf("Resolve(EUR/USD) error: %v", err)
	}
	if eurusd.PipSize != 0.0001 || eurusd.PipDecimals != 4 {
		t.Errorf("EUR/USD pip spec = (%v, %v), want (0.0001, 4)", eurusd.PipSize, eurusd.PipDecimals)
	}
	if eurusd.Symbol != "EURUSD" {
		t.Errorf("EUR/USD symbol = %q, want EURUSD", eurusd.Symbol)
	}

	usdjpy, err := r.Resolve("USD/JPY")
	if err != nil {
		t.Fatalf("Resolve(USD/JPY) error: %v", err)
	}
	if usdjpy.PipSize != 0.01 || usdjpy.PipDecimals != 2 {
		t.Errorf("USD/JPY pip spec = (%v, %v), want (0.01, 2)", usdjpy.PipSize, usdjpy.PipDecimals)
	}
}

func TestResolveUnknownPair(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("BTC/USD")
	if err == nil {
		t.Fatal("expected error for unknown pair")
	}
	if !stderrors.Is(err, errors.ErrUnknownPair) {
		t.Errorf("error = %v, want ErrUnknownPair", err)
	}
}

func TestLotConversions(t *testing.T) {
	c := buildContract("EUR/USD")

	if got := c.LotsToUnits(1); got != 100000 {
		t.Errorf("LotsToUnits(1) = %v, want 100000", got)
	}
	if got := c.UnitsToLots(50000); got != 0.5 {
		t.Errorf("UnitsToLots(50000) = %v, want 0.5", got)
	}
	if got := c.PipValue(1); math.Abs(got-10) > 1e-9 {
		t.Errorf("PipValue(1) = %v, want 10", got)
	}
	if got := c.PipValue(0.1); math.Abs(got-1) > 1e-9 {
		t.Errorf("PipValue(0.1) = %v, want 1", got)
	}
}

func TestPipConversions(t *testing.T) {
	c := buildContract("EUR/USD")
	if got := c.PriceToPips(0.0003); math.Abs(got-3) > 1e-9 {
		t.Errorf("PriceToPips(0.0003) = %v, want 3", got)
	}
	if got := c.PipsToPrice(25); math.Abs(got-0.0025) > 1e-9 {
		t.Errorf("PipsToPrice(25) = %v, want 0.0025", got)
	}

	jpy := buildContract("USD/JPY")
	if got := jpy.PriceToPips(0.05); math.Abs(got-5) > 1e-9 {
		t.Errorf("JPY PriceToPips(0.05) = %v, want 5", got)
	}
}

func TestRoundLots(t *testing.T) {
	c := buildContract("EUR/USD")
	tests := []struct {
		in, want float64
	}{
		{0.004, 0},     // below minimum rounds to zero
		{0.016, 0.01},  // snapped down to step
		{0.237, 0.23},  // never rounds up
		{0.3, 0.3},     // exact multiple kept
		{150, 100},     // clamped to maximum
		{100, 100},     // at maximum
		{0.01, 0.01},   // at minimum
		{-1, 0},        // negative rejected
	}
	for _, tt := range tests {
		if got := c.RoundLots(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RoundLots(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolverCoversKnownPairs(t *testing.T) {
	r := NewResolver()
	if got := len(r.Pairs()); got != len(knownPairs) {
		t.Fatalf("Pairs() returned %d pairs, want %d", got, len(knownPairs))
	}
	for _, p := range knownPairs {
		if _, err := r.Resolve(p); err != nil {
			t.Errorf("Resolve(%s) error: %v", p, err)
		}
	}
}
