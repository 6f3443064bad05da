// Package notify surfaces operational events to the operator: trade
// executions, connection health transitions, fallback toggles and broker
// errors, fanned out to the enabled channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"forex-trader/internal/config"
	"forex-trader/internal/models"
	"forex-trader/pkg/utils"
)

// Notifier is the operator notification surface.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendTradeOpened(ctx context.Context, trade *models.Trade) error
	SendTradeClosed(ctx context.Context, trade *models.Trade) error
	SendHealthTransition(ctx context.Context, old, new models.HealthStatus) error
	SendFallback(ctx context.Context, active bool) error
	SendError(ctx context.Context, err error, context string) error
}

// Channel is one delivery mechanism for notifications.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationTrade      NotificationType = "trade"
	NotificationConnection NotificationType = "connection"
	NotificationError      NotificationType = "error"
	NotificationInfo       NotificationType = "info"
)

// Notification is one message to the operator.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// MultiNotifier fans notifications out to every enabled channel.
type MultiNotifier struct {
	mu       sync.RWMutex
	channels []Channel
}

// NewMultiNotifier builds the notifier from configuration. The terminal
// channel is always on; the webhook channel joins when configured.
func NewMultiNotifier(cfg config.NotifyConfig) *MultiNotifier {
	mn := &MultiNotifier{}
	if !cfg.Enabled {
		return mn
	}
	mn.channels = append(mn.channels, NewTerminalChannel())
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookChannel(cfg.Webhook))
	}
	return mn
}

// AddChannel registers an extra delivery channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Send delivers a notification to every enabled channel and aggregates
// per-channel failures.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendTradeOpened announces a newly opened trade.
func (mn *MultiNotifier) SendTradeOpened(ctx context.Context, trade *models.Trade) error {
	title := fmt.Sprintf("Trade opened: %s %s", trade.Direction, trade.Pair)
	message := fmt.Sprintf("%s %s %.2f lots @ %.5f (stop %.5f, target %.5f, mode %s)",
		trade.Direction, trade.Pair, trade.Lots, trade.EntryPrice, trade.StopLoss, trade.TakeProfit, trade.Mode)
	return mn.Send(ctx, Notification{
		Type:    NotificationTrade,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"trade_id":  trade.ID,
			"pair":      string(trade.Pair),
			"direction": string(trade.Direction),
			"lots":      trade.Lots,
			"entry":     trade.EntryPrice,
			"mode":      string(trade.Mode),
			"simulated": trade.Simulated,
		},
	})
}

// SendTradeClosed announces a closed trade with its outcome.
func (mn *MultiNotifier) SendTradeClosed(ctx context.Context, trade *models.Trade) error {
	sign := "+"
	if trade.PnL < 0 {
		sign = ""
	}
	title := fmt.Sprintf("Trade closed: %s %s (%s)", trade.Direction, trade.Pair, trade.CloseReason)
	message := fmt.Sprintf("%s %s %.2f lots, entry %.5f exit %.5f, P/L %s%.2f (%s%.1f pips)",
		trade.Direction, trade.Pair, trade.Lots, trade.EntryPrice, trade.ExitPrice, sign, trade.PnL, sign, trade.PnLPips)
	return mn.Send(ctx, Notification{
		Type:    NotificationTrade,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"trade_id": trade.ID,
			"pair":     string(trade.Pair),
			"reason":   string(trade.CloseReason),
			"pnl":      trade.PnL,
			"pnl_pips": trade.PnLPips,
		},
	})
}

// SendHealthTransition announces a broker health change.
func (mn *MultiNotifier) SendHealthTransition(ctx context.Context, old, new models.HealthStatus) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationConnection,
		Title:   fmt.Sprintf("Broker health: %s", new),
		Message: fmt.Sprintf("Connection health changed from %s to %s", old, new),
		Data: map[string]interface{}{
			"old": string(old),
			"new": string(new),
		},
	})
}

// SendFallback announces entering or leaving the simulation fallback.
func (mn *MultiNotifier) SendFallback(ctx context.Context, active bool) error {
	title := "Simulation fallback disengaged"
	message := "Broker connection restored; resuming broker execution"
	if active {
		title = "Simulation fallback engaged"
		message = "Broker connection lost; new trades execute in simulation"
	}
	return mn.Send(ctx, Notification{
		Type:    NotificationConnection,
		Title:   title,
		Message: message,
		Data:    map[string]interface{}{"fallback": active},
	})
}

// SendError announces an operational error.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Error: " + errContext,
		Message: fmt.Sprintf("%s: %v", errContext, err),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// WebhookChannel posts notifications as JSON to a configured endpoint.
// Transient delivery failures are retried with backoff.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
	retry   utils.RetryConfig
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
		retry: utils.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2.0,
		},
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string { return "webhook" }

// IsEnabled reports whether the channel is configured.
func (w *WebhookChannel) IsEnabled() bool { return w.enabled }

// Send posts the notification to the webhook URL.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	return utils.Retry(ctx, w.retry, func() error {
		return w.post(ctx, body)
	})
}

func (w *WebhookChannel) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ForexTrader/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoOpNotifier discards every notification.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a notifier that does nothing.
func NewNoOpNotifier() *NoOpNotifier { return &NoOpNotifier{} }

func (NoOpNotifier) Send(context.Context, Notification) error                           { return nil }
func (NoOpNotifier) SendTradeOpened(context.Context, *models.Trade) error               { return nil }
func (NoOpNotifier) SendTradeClosed(context.Context, *models.Trade) error               { return nil }
func (NoOpNotifier) SendHealthTransition(context.Context, models.HealthStatus, models.HealthStatus) error {
	return nil
}
func (NoOpNotifier) SendFallback(context.Context, bool) error       { return nil }
func (NoOpNotifier) SendError(context.Context, error, string) error { return nil }
