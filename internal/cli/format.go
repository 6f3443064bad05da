package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"forex-trader/internal/models"
	"forex-trader/pkg/utils"
)

var (
	greenText  = color.New(color.FgGreen).SprintFunc()
	redText    = color.New(color.FgRed).SprintFunc()
	yellowText = color.New(color.FgYellow).SprintFunc()
	cyanText   = color.New(color.FgCyan).SprintFunc()
	dimText    = color.New(color.Faint).SprintFunc()
)

// FormatConnectionState renders a connection state with a status color.
func FormatConnectionState(state models.ConnectionState) string {
	switch state {
	case models.StateConnected:
		return greenText("● " + string(state))
	case models.StateConnecting, models.StateReconnecting:
		return yellowText("◌ " + string(state))
	case models.StateError:
		return redText("● " + string(state))
	default:
		return dimText("○ " + string(state))
	}
}

// FormatHealth renders a health status with a status color.
func FormatHealth(health models.HealthStatus) string {
	switch health {
	case models.HealthHealthy:
		return greenText(string(health))
	case models.HealthDegraded:
		return yellowText(string(health))
	case models.HealthUnhealthy:
		return redText(string(health))
	default:
		return dimText(string(health))
	}
}

// FormatMode renders an execution mode, coloring LIVE as a warning.
func FormatMode(mode models.ExecutionMode) string {
	switch mode {
	case models.ModeLive:
		return redText(string(mode))
	case models.ModePaper:
		return yellowText(string(mode))
	default:
		return cyanText(string(mode))
	}
}

// FormatPnL renders a profit figure green or red.
func FormatPnL(pnl float64) string {
	s := utils.FormatMoney(pnl)
	if pnl > 0 {
		return greenText(s)
	}
	if pnl < 0 {
		return redText(s)
	}
	return s
}

// FormatTradeRow renders the table cells for one trade.
func FormatTradeRow(t models.Trade) []string {
	age := time.Since(t.OpenedAt).Round(time.Second)
	return []string{
		utils.Truncate(t.ID, 8),
		string(t.Pair),
		string(t.Direction),
		utils.FormatLots(t.Lots),
		utils.FormatPrice(string(t.Pair), t.EntryPrice),
		utils.FormatPrice(string(t.Pair), t.EffectiveStop()),
		utils.FormatPrice(string(t.Pair), t.TakeProfit),
		FormatPnL(t.PnL),
		fmt.Sprint(age),
	}
}

// FormatDuration renders a duration in a compact human form.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
