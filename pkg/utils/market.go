package utils

import "time"

// MarketStatus describes the state of the global forex session clock.
type MarketStatus string

const (
	MarketOpen        MarketStatus = "OPEN"
	MarketClosed      MarketStatus = "CLOSED"
	MarketCloseSoon   MarketStatus = "CLOSE_SOON"
)

// The forex market trades continuously from the Sydney open on Sunday
// 21:00 UTC until the New York close on Friday 21:00 UTC.
const (
	weekOpenHourUTC  = 21 // Sunday
	weekCloseHourUTC = 21 // Friday
)

// GetMarketStatus returns the session status at the given instant.
func GetMarketStatus(at time.Time) MarketStatus {
	now := at.UTC()
	switch now.Weekday() {
	case time.Saturday:
		return MarketClosed
	case time.Sunday:
		if now.Hour() < weekOpenHourUTC {
			return MarketClosed
		}
		return MarketOpen
	case time.Friday:
		if now.Hour() >= weekCloseHourUTC {
			return MarketClosed
		}
		// Liquidity thins out in the last hour of the week.
		if now.Hour() >= weekCloseHourUTC-1 {
			return MarketCloseSoon
		}
		return MarketOpen
	default:
		return MarketOpen
	}
}

// IsMarketOpen reports whether the forex market is trading right now.
func IsMarketOpen() bool {
	status := GetMarketStatus(time.Now())
	return status == MarketOpen || status == MarketCloseSoon
}

// NextMarketOpen returns the next Sunday 21:00 UTC open at or after the
// given instant. During the trading week it returns the instant itself.
func NextMarketOpen(at time.Time) time.Time {
	now := at.UTC()
	if GetMarketStatus(now) != MarketClosed {
		return now
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), weekOpenHourUTC, 0, 0, 0, time.UTC)
	for next.Weekday() != time.Sunday || !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TimeUntilClose returns the time remaining until the Friday close. During
// the weekend it returns zero.
func TimeUntilClose(at time.Time) time.Duration {
	now := at.UTC()
	if GetMarketStatus(now) == MarketClosed {
		return 0
	}
	close := time.Date(now.Year(), now.Month(), now.Day(), weekCloseHourUTC, 0, 0, 0, time.UTC)
	for close.Weekday() != time.Friday || !close.After(now) {
		close = close.AddDate(0, 0, 1)
	}
	return close.Sub(now)
}
