package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trader/internal/config"
	"forex-trader/internal/errors"
	"forex-trader/internal/models"
)

// Monitor layers heartbeat probing on top of the Connector. It detects
// silently dead sockets the connector's own disconnect handling would never
// observe, and escalates repeated failures into a forced reconnect.
type Monitor struct {
	cfg  config.HeartbeatConfig
	conn *Connector
	log  zerolog.Logger

	mu                  sync.Mutex
	status              models.HealthStatus
	lastSuccess         time.Time
	lastProbe           time.Time
	lastLatency         time.Duration
	consecutiveFailures int
	totalProbes         int64
	totalFailures       int64
	forcedReconnects    int64
	escalated           bool
	running             bool
	cancel              context.CancelFunc
	listeners           []func(old, new models.HealthStatus)
	startedAt           time.Time
}

// NewMonitor creates a connection monitor.
func NewMonitor(cfg config.HeartbeatConfig, conn *Connector, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		conn:   conn,
		log:    logger.With().Str("component", "monitor").Logger(),
		status: models.HealthDisconnected,
	}
}

// OnStatusChange registers a listener for health transitions. Transitions
// are edge-triggered: listeners fire only when the status actually changes.
func (m *Monitor) OnStatusChange(fn func(old, new models.HealthStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start begins the periodic heartbeat loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.startedAt = time.Now()
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	stateCh, unsubState := m.conn.Events().Subscribe(EventStateChange, 16)

	go func() {
		defer unsubState()
		ticker := time.NewTicker(m.cfg.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stateCh:
				m.reclassify()
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop halts the heartbeat loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.running = false
}

// CheckHealth performs an on-demand probe and returns the round-trip
// latency, or a timeout failure.
func (m *Monitor) CheckHealth(ctx context.Context) (time.Duration, error) {
	return m.roundTrip(ctx)
}

// IsHealthy reports whether the connection is currently classified healthy.
func (m *Monitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == models.HealthHealthy
}

// probe runs one scheduled heartbeat and feeds the failure counter.
func (m *Monitor) probe(ctx context.Context) {
	if !m.conn.IsConnected() {
		m.reclassify()
		return
	}

	latency, err := m.roundTrip(ctx)

	m.mu.Lock()
	m.totalProbes++
	m.lastProbe = time.Now()
	if err != nil {
		m.totalFailures++
		m.consecutiveFailures++
		failures := m.consecutiveFailures
		escalate := failures >= m.cfg.MaxConsecutiveFailures && !m.escalated
		if escalate {
			m.escalated = true
			m.forcedReconnects++
		}
		m.mu.Unlock()

		m.log.Warn().Err(err).Int("consecutive_failures", failures).Msg("Heartbeat failed")
		if escalate {
			m.log.Error().Int("failures", failures).Msg("Heartbeat threshold breached; forcing reconnect")
			m.conn.ForceReconnect(errors.Wrap(errors.ErrTimeout, "heartbeat failures exceeded threshold"))
		}
		m.reclassify()
		return
	}

	m.lastSuccess = time.Now()
	m.lastLatency = latency
	m.consecutiveFailures = 0
	m.escalated = false
	m.mu.Unlock()

	m.log.Debug().Dur("latency", latency).Msg("Heartbeat ok")
	m.reclassify()
}

// roundTrip sends one server-time request and waits for the response.
func (m *Monitor) roundTrip(ctx context.Context) (time.Duration, error) {
	respCh, unsub := m.conn.Events().Subscribe(EventServerTime, 1)
	defer unsub()

	start := time.Now()
	if err := m.conn.RequestServerTime(); err != nil {
		return 0, err
	}

	timer := time.NewTimer(m.cfg.Timeout())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, errors.Wrap(errors.ErrTimeout, "heartbeat probe")
	case _, ok := <-respCh:
		if !ok {
			return 0, errors.ErrNotConnected
		}
		return time.Since(start), nil
	}
}

// classify derives the health status; health is never settable directly.
func (m *Monitor) classify() models.HealthStatus {
	switch m.conn.State() {
	case models.StateConnected:
	case models.StateReconnecting, models.StateConnecting, models.StateError:
		return models.HealthUnhealthy
	default:
		return models.HealthDisconnected
	}

	m.mu.Lock()
	last := m.lastSuccess
	m.mu.Unlock()
	if last.IsZero() {
		// Connected but no probe has succeeded yet.
		return models.HealthHealthy
	}

	elapsed := time.Since(last)
	switch {
	case elapsed < m.cfg.DegradedThreshold():
		return models.HealthHealthy
	case elapsed < m.cfg.UnhealthyThreshold():
		return models.HealthDegraded
	default:
		return models.HealthUnhealthy
	}
}

// reclassify recomputes health and broadcasts edge-triggered transitions.
func (m *Monitor) reclassify() {
	new := m.classify()

	m.mu.Lock()
	old := m.status
	if old == new {
		m.mu.Unlock()
		return
	}
	m.status = new
	listeners := make([]func(old, new models.HealthStatus), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.log.Info().Str("from", string(old)).Str("to", string(new)).Msg("Health status changed")
	for _, fn := range listeners {
		fn(old, new)
	}
}

// MonitorStatus is a point-in-time snapshot for the dashboard layer.
type MonitorStatus struct {
	Status              models.HealthStatus
	LastSuccess         time.Time
	LastProbe           time.Time
	LastLatency         time.Duration
	ConsecutiveFailures int
	TotalProbes         int64
	TotalFailures       int64
	ForcedReconnects    int64
	SuccessRate         float64
	Uptime              time.Duration
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MonitorStatus{
		Status:              m.status,
		LastSuccess:         m.lastSuccess,
		LastProbe:           m.lastProbe,
		LastLatency:         m.lastLatency,
		ConsecutiveFailures: m.consecutiveFailures,
		TotalProbes:         m.totalProbes,
		TotalFailures:       m.totalFailures,
		ForcedReconnects:    m.forcedReconnects,
	}
	if m.totalProbes > 0 {
		s.SuccessRate = float64(m.totalProbes-m.totalFailures) / float64(m.totalProbes)
	}
	if !m.startedAt.IsZero() {
		s.Uptime = time.Since(m.startedAt)
	}
	return s
}

// Health returns the current health classification.
func (m *Monitor) Health() models.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
