// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
)

// FormatPrice formats a price with the conventional decimal count for the
// pair: 3 decimals for JPY quotes, 5 otherwise.
func FormatPrice(pair string, price float64) string {
	if strings.HasSuffix(pair, "JPY") {
		return fmt.Sprintf("%.3f", price)
	}
	return fmt.Sprintf("%.5f", price)
}

// FormatPips formats a signed pip quantity.
func FormatPips(pips float64) string {
	sign := ""
	if pips > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.1f pips", sign, pips)
}

// FormatMoney formats an account-currency amount with a sign.
func FormatMoney(amount float64) string {
	sign := ""
	if amount > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f", sign, amount)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatLots formats a lot quantity.
func FormatLots(lots float64) string {
	return fmt.Sprintf("%.2f", lots)
}

// Truncate shortens a string to max characters with an ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max || max < 4 {
		return s
	}
	return s[:max-3] + "..."
}
