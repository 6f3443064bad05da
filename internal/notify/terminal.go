package notify

import (
	"context"
	"fmt"

	"github.com/fatih/color"
)

// TerminalChannel prints notifications to the controlling terminal. It is
// the always-on channel for an operator watching the session.
type TerminalChannel struct {
	enabled bool
}

// NewTerminalChannel creates a terminal channel.
func NewTerminalChannel() *TerminalChannel {
	return &TerminalChannel{enabled: true}
}

// Name returns the channel name.
func (t *TerminalChannel) Name() string { return "terminal" }

// IsEnabled reports whether the channel is active.
func (t *TerminalChannel) IsEnabled() bool { return t.enabled }

// SetEnabled turns the channel on or off.
func (t *TerminalChannel) SetEnabled(enabled bool) { t.enabled = enabled }

// Send prints the notification with a type-coded color.
func (t *TerminalChannel) Send(_ context.Context, n Notification) error {
	var paint *color.Color
	switch n.Type {
	case NotificationTrade:
		paint = color.New(color.FgCyan)
	case NotificationConnection:
		paint = color.New(color.FgYellow)
	case NotificationError:
		paint = color.New(color.FgRed, color.Bold)
	default:
		paint = color.New(color.FgWhite)
	}

	fmt.Printf("[%s] %s %s\n",
		n.Timestamp.Format("15:04:05"),
		paint.Sprint(n.Title),
		n.Message)
	return nil
}
