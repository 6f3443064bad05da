package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"forex-trader/internal/config"
	"forex-trader/internal/models"
	"forex-trader/pkg/utils"
)

// recordingChannel captures notifications for assertions.
type recordingChannel struct {
	mu      sync.Mutex
	name    string
	enabled bool
	got     []Notification
	sendErr error
}

func (c *recordingChannel) Name() string    { return c.name }
func (c *recordingChannel) IsEnabled() bool { return c.enabled }

func (c *recordingChannel) Send(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.got = append(c.got, n)
	return nil
}

func (c *recordingChannel) received() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.got))
	copy(out, c.got)
	return out
}

func TestMultiNotifierFansOut(t *testing.T) {
	a := &recordingChannel{name: "a", enabled: true}
	b := &recordingChannel{name: "b", enabled: true}
	off := &recordingChannel{name: "off", enabled: false}

	mn := NewMultiNotifier(config.NotifyConfig{})
	mn.AddChannel(a)
	mn.AddChannel(b)
	mn.AddChannel(off)

	if err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hello"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Error("enabled channels did not all receive the notification")
	}
	if len(off.received()) != 0 {
		t.Error("disabled channel received a notification")
	}
	if a.received()[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped on send")
	}
}

func TestMultiNotifierAggregatesChannelErrors(t *testing.T) {
	ok := &recordingChannel{name: "ok", enabled: true}
	bad := &recordingChannel{name: "bad", enabled: true, sendErr: context.DeadlineExceeded}

	mn := NewMultiNotifier(config.NotifyConfig{})
	mn.AddChannel(ok)
	mn.AddChannel(bad)

	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "x"})
	if err == nil {
		t.Fatal("Send() swallowed a channel failure")
	}
	// The healthy channel still got its copy.
	if len(ok.received()) != 1 {
		t.Error("failure in one channel blocked another")
	}
}

func TestSendTradeClosedPayload(t *testing.T) {
	ch := &recordingChannel{name: "rec", enabled: true}
	mn := NewMultiNotifier(config.NotifyConfig{})
	mn.AddChannel(ch)

	trade := &models.Trade{
		ID: "t1", Pair: "EUR/USD", Direction: models.DirectionBuy,
		Lots: 0.1, EntryPrice: 1.1000, ExitPrice: 1.1050,
		PnL: 50, PnLPips: 50,
		Status: models.TradeClosed, CloseReason: models.CloseTakeProfit,
	}
	if err := mn.SendTradeClosed(context.Background(), trade); err != nil {
		t.Fatalf("SendTradeClosed() error: %v", err)
	}

	got := ch.received()
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	if got[0].Type != NotificationTrade {
		t.Errorf("type = %s, want trade", got[0].Type)
	}
	if got[0].Data["pnl"] != 50.0 {
		t.Errorf("pnl = %v, want 50", got[0].Data["pnl"])
	}
	if got[0].Data["reason"] != "TAKE_PROFIT" {
		t.Errorf("reason = %v, want TAKE_PROFIT", got[0].Data["reason"])
	}
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	type payload struct {
		Type    string `json:"type"`
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	var mu sync.Mutex
	var got []payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL})
	if !ch.IsEnabled() {
		t.Fatal("configured webhook channel not enabled")
	}

	err := ch.Send(context.Background(), Notification{
		Type: NotificationConnection, Title: "Broker health: DEGRADED", Message: "latency rising",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if got[0].Type != "connection" || got[0].Title != "Broker health: DEGRADED" {
		t.Errorf("payload = %+v", got[0])
	}
}

func TestWebhookChannelRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL})
	if err := ch.Send(context.Background(), Notification{Type: NotificationInfo, Title: "x"}); err == nil {
		t.Error("Send() ignored a 502 response")
	}
}

func TestWebhookChannelRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL})
	ch.retry = utils.RetryConfig{
		MaxAttempts: 2, InitialDelay: time.Millisecond,
		MaxDelay: 10 * time.Millisecond, BackoffFactor: 2.0,
	}

	if err := ch.Send(context.Background(), Notification{Type: NotificationInfo, Title: "x"}); err != nil {
		t.Fatalf("Send() error after retry: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("requests = %d, want 2", calls)
	}
}

func TestWebhookChannelDisabledWithoutURL(t *testing.T) {
	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true})
	if ch.IsEnabled() {
		t.Error("webhook enabled without a URL")
	}
}
