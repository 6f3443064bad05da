package utils

import "testing"

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		pair  string
		price float64
		want  string
	}{
		{"EUR/USD", 1.1, "1.10000"},
		{"GBP/USD", 1.23456, "1.23456"},
		{"USD/JPY", 148.1, "148.100"},
		{"EUR/JPY", 160.123, "160.123"},
	}
	for _, tt := range tests {
		if got := FormatPrice(tt.pair, tt.price); got != tt.want {
			t.Errorf("FormatPrice(%s, %v) = %q, want %q", tt.pair, tt.price, got, tt.want)
		}
	}
}

func TestFormatSignedValues(t *testing.T) {
	if got := FormatPips(12.34); got != "+12.3 pips" {
		t.Errorf("FormatPips(12.34) = %q", got)
	}
	if got := FormatPips(-5); got != "-5.0 pips" {
		t.Errorf("FormatPips(-5) = %q", got)
	}
	if got := FormatMoney(100); got != "+100.00" {
		t.Errorf("FormatMoney(100) = %q", got)
	}
	if got := FormatMoney(-42.5); got != "-42.50" {
		t.Errorf("FormatMoney(-42.5) = %q", got)
	}
	if got := FormatPercent(1.5); got != "+1.50%" {
		t.Errorf("FormatPercent(1.5) = %q", got)
	}
	if got := FormatLots(0.1); got != "0.10" {
		t.Errorf("FormatLots(0.1) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 10); got != "abcdef" {
		t.Errorf("Truncate(short) = %q", got)
	}
	if got := Truncate("abcdefghij", 7); got != "abcd..." {
		t.Errorf("Truncate(long) = %q", got)
	}
	// A budget too small for an ellipsis returns the string unchanged.
	if got := Truncate("abcdef", 3); got != "abcdef" {
		t.Errorf("Truncate(tiny max) = %q", got)
	}
}
