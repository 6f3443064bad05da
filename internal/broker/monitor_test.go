package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trader/internal/config"
	"forex-trader/internal/models"
)

func testHeartbeatConfig() config.HeartbeatConfig {
	return config.HeartbeatConfig{
		IntervalMs:             20,
		TimeoutMs:              15,
		DegradedThresholdMs:    60000,
		UnhealthyThresholdMs:   120000,
		MaxConsecutiveFailures: 3,
	}
}

func TestCheckHealthRoundTrip(t *testing.T) {
	transport := newFakeTransport()
	c := testConnector(t, transport, noReconnect())
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	m := NewMonitor(testHeartbeatConfig(), c, zerolog.Nop())
	latency, err := m.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if latency < 0 {
		t.Errorf("latency = %v, want non-negative", latency)
	}
}

func TestCheckHealthNotConnected(t *testing.T) {
	c := testConnector(t, newFakeTransport(), noReconnect())
	m := NewMonitor(testHeartbeatConfig(), c, zerolog.Nop())

	if _, err := m.CheckHealth(context.Background()); err == nil {
		t.Fatal("CheckHealth() succeeded without a connection")
	}
}

func TestCheckHealthTimesOut(t *testing.T) {
	transport := newFakeTransport()
	transport.answerTime = false
	c := testConnector(t, transport, noReconnect())
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	m := NewMonitor(testHeartbeatConfig(), c, zerolog.Nop())
	if _, err := m.CheckHealth(context.Background()); err == nil {
		t.Fatal("CheckHealth() succeeded with an unresponsive gateway")
	}
}

func TestMonitorHealthyWhileProbesSucceed(t *testing.T) {
	transport := newFakeTransport()
	c := testConnector(t, transport, noReconnect())
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	m := NewMonitor(testHeartbeatConfig(), c, zerolog.Nop())
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool {
		s := m.Status()
		return s.TotalProbes >= 2 && s.TotalFailures == 0
	})
	if !m.IsHealthy() {
		t.Errorf("Health() = %s, want HEALTHY", m.Health())
	}
	if s := m.Status(); s.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", s.SuccessRate)
	}
}

// Three consecutive heartbeat timeouts must force exactly one reconnect.
// After escalation the session is torn down, so further probes observe the
// disconnected state instead of accumulating more failures.
func TestMonitorEscalatesOnceAfterThreshold(t *testing.T) {
	transport := newFakeTransport()
	transport.answerTime = false
	c := testConnector(t, transport, noReconnect())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	m := NewMonitor(testHeartbeatConfig(), c, zerolog.Nop())
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		return m.Status().ForcedReconnects == 1
	})
	if got := c.State(); got != models.StateError {
		t.Errorf("connector state = %s, want ERROR after forced reconnect", got)
	}

	// Give the loop several more intervals; the escalation must not repeat.
	time.Sleep(200 * time.Millisecond)
	if got := m.Status().ForcedReconnects; got != 1 {
		t.Errorf("ForcedReconnects = %d, want exactly 1", got)
	}
	if s := m.Status(); s.ConsecutiveFailures < testHeartbeatConfig().MaxConsecutiveFailures {
		t.Errorf("ConsecutiveFailures = %d, want at least %d",
			s.ConsecutiveFailures, testHeartbeatConfig().MaxConsecutiveFailures)
	}
}

func TestMonitorHealthClassification(t *testing.T) {
	transport := newFakeTransport()
	c := testConnector(t, transport, noReconnect())
	m := NewMonitor(testHeartbeatConfig(), c, zerolog.Nop())

	// Never connected.
	if got := m.Health(); got != models.HealthDisconnected {
		t.Errorf("initial health = %s, want DISCONNECTED", got)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	m.reclassify()
	// Connected with no probe history yet counts as healthy.
	if got := m.Health(); got != models.HealthHealthy {
		t.Errorf("health after connect = %s, want HEALTHY", got)
	}

	c.Disconnect()
	m.reclassify()
	if got := m.Health(); got != models.HealthDisconnected {
		t.Errorf("health after disconnect = %s, want DISCONNECTED", got)
	}
}

func TestMonitorStatusChangeListeners(t *testing.T) {
	transport := newFakeTransport()
	c := testConnector(t, transport, noReconnect())
	m := NewMonitor(testHeartbeatConfig(), c, zerolog.Nop())

	var mu sync.Mutex
	var transitions [][2]models.HealthStatus
	m.OnStatusChange(func(old, new models.HealthStatus) {
		mu.Lock()
		transitions = append(transitions, [2]models.HealthStatus{old, new})
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	m.reclassify()
	m.reclassify() // same status again, must not re-fire

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 {
		t.Fatalf("listener fired %d times, want 1", len(transitions))
	}
	if transitions[0][0] != models.HealthDisconnected || transitions[0][1] != models.HealthHealthy {
		t.Errorf("transition = %v, want DISCONNECTED -> HEALTHY", transitions[0])
	}
}
