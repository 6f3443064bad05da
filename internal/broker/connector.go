// Package broker owns the single session to the brokerage gateway: the
// connection state machine, backoff reconnection, heartbeat monitoring and
// the typed event fan-out every other component consumes.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trader/internal/config"
	"forex-trader/internal/errors"
	"forex-trader/internal/models"
	"forex-trader/pkg/utils"
)

const connectTimeout = 15 * time.Second

// ConnectorConfig holds the connector's wiring.
type ConnectorConfig struct {
	URL       string
	ClientID  int
	Reconnect config.ReconnectConfig
}

// Connector maintains the stateful session against the brokerage gateway.
// One instance is wired per process at startup.
type Connector struct {
	cfg       ConnectorConfig
	transport Transport
	bus       *Bus
	log       zerolog.Logger

	mu               sync.Mutex
	state            models.ConnectionState
	nextOrderID      int64
	attempts         int
	connGen          int
	intentional      bool
	reconnectPending bool
	reconnectTimer   *time.Timer
	connectedAt      time.Time
	lastError        error
	lastTimeReqAt    time.Time
	symbolPairs      map[string]models.Pair
}

// NewConnector creates a connector over the given transport.
func NewConnector(cfg ConnectorConfig, transport Transport, logger zerolog.Logger) *Connector {
	return &Connector{
		cfg:         cfg,
		transport:   transport,
		bus:         NewBus(),
		log:         logger.With().Str("component", "connector").Logger(),
		state:       models.StateDisconnected,
		symbolPairs: make(map[string]models.Pair),
	}
}

// Events returns the connector's event bus.
func (c *Connector) Events() *Bus {
	return c.bus
}

// State returns the current connection state.
func (c *Connector) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the session is established.
func (c *Connector) IsConnected() bool {
	return c.State() == models.StateConnected
}

// setState transitions the state machine, always emitting the stateChange
// event before any dependent side effect runs.
func (c *Connector) setState(new models.ConnectionState) {
	c.mu.Lock()
	old := c.state
	if old == new {
		c.mu.Unlock()
		return
	}
	c.state = new
	c.mu.Unlock()

	c.log.Info().Str("old", string(old)).Str("new", string(new)).Msg("Connection state changed")
	c.bus.Publish(EventStateChange, StateChange{Old: old, New: new})
}

// Connect establishes the gateway session. It is idempotent: a call while
// already connected succeeds without side effects, and a call while a
// connection attempt is in flight fails with ErrConnectionInProgress rather
// than racing a second attempt.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case models.StateConnected:
		c.mu.Unlock()
		return nil
	case models.StateConnecting:
		c.mu.Unlock()
		return errors.ErrConnectionInProgress
	}
	c.intentional = false
	c.attempts = 0 // operator-initiated connect resets the retry budget
	c.cancelScheduledReconnectLocked()
	c.mu.Unlock()

	c.setState(models.StateConnecting)
	if err := c.establish(ctx); err != nil {
		c.mu.Lock()
		c.lastError = err
		c.mu.Unlock()
		c.setState(models.StateError)
		c.bus.Publish(EventError, BrokerNotice{Code: 502, Message: err.Error()})
		c.scheduleReconnect()
		return errors.Wrap(errors.ErrConnectionFailed, err.Error())
	}
	return nil
}

// establish dials the transport, performs the hello/welcome handshake and
// starts the dispatch loop.
func (c *Connector) establish(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	recv, err := c.transport.Dial(dialCtx, c.cfg.URL)
	if err != nil {
		return err
	}

	hello, err := encode(msgHello, 0, helloPayload{ClientID: c.cfg.ClientID})
	if err != nil {
		c.transport.Close()
		return err
	}
	if err := c.transport.Send(hello); err != nil {
		c.transport.Close()
		return err
	}

	// The first frame the gateway sends is the welcome carrying the next
	// valid order id.
	var welcome welcomePayload
	select {
	case msg, ok := <-recv:
		if !ok {
			c.transport.Close()
			return errors.New("gateway closed connection during handshake")
		}
		if msg.Type != msgWelcome {
			c.transport.Close()
			return errors.Wrapf(errors.ErrConnectionFailed, "unexpected handshake frame %q", msg.Type)
		}
		if err := decodeJSON(msg.Data, &welcome); err != nil {
			c.transport.Close()
			return err
		}
	case <-dialCtx.Done():
		c.transport.Close()
		return errors.Wrap(errors.ErrTimeout, "waiting for gateway welcome")
	}

	c.mu.Lock()
	c.nextOrderID = welcome.NextOrderID
	c.attempts = 0
	c.reconnectPending = false
	c.connGen++
	gen := c.connGen
	c.connectedAt = time.Now()
	c.lastError = nil
	c.mu.Unlock()

	c.setState(models.StateConnected)
	c.bus.Publish(EventNextOrderID, welcome.NextOrderID)
	c.bus.Publish(EventConnected, nil)

	go c.dispatch(gen, recv)
	return nil
}

// dispatch consumes inbound frames until the stream closes.
func (c *Connector) dispatch(gen int, recv <-chan Message) {
	for msg := range recv {
		c.handleMessage(msg)
	}
	c.handleConnectionLoss(gen, errors.New("gateway stream closed"))
}

// handleConnectionLoss drives the post-connect drop path. The generation
// guard makes it a no-op for stale dispatch loops and repeated forced
// reconnects on the same session.
func (c *Connector) handleConnectionLoss(gen int, cause error) {
	c.mu.Lock()
	if gen != c.connGen || c.state == models.StateDisconnected {
		c.mu.Unlock()
		return
	}
	intentional := c.intentional
	c.connGen++
	c.lastError = cause
	c.mu.Unlock()

	c.transport.Close()

	if intentional {
		c.setState(models.StateDisconnected)
		c.bus.Publish(EventDisconnected, nil)
		return
	}

	c.log.Warn().Err(cause).Msg("Broker connection lost")
	c.setState(models.StateError)
	c.bus.Publish(EventDisconnected, nil)
	c.scheduleReconnect()
}

// ForceReconnect tears the session down and schedules a reconnect. The
// connection monitor calls this when heartbeats detect a silently dead
// socket. Repeated calls before recovery are idempotent.
func (c *Connector) ForceReconnect(cause error) {
	c.mu.Lock()
	gen := c.connGen
	c.mu.Unlock()
	c.handleConnectionLoss(gen, cause)
}

// ReconnectDelay returns the nth scheduled reconnect delay,
// min(initialDelay * multiplier^n, maxDelay), counting from n = 0.
func ReconnectDelay(cfg config.ReconnectConfig, n int) time.Duration {
	return utils.CalculateBackoff(n, cfg.InitialDelay(), cfg.MaxDelay(), cfg.BackoffMultiplier)
}

func (c *Connector) scheduleReconnect() {
	if !c.cfg.Reconnect.Enabled {
		c.log.Warn().Msg("Reconnection disabled; staying down until operator connect")
		return
	}

	c.mu.Lock()
	if c.reconnectPending {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.Reconnect.MaxAttempts {
		c.mu.Unlock()
		c.log.Error().
			Int("attempts", c.cfg.Reconnect.MaxAttempts).
			Msg("Reconnect attempts exhausted; operator connect required")
		c.bus.Publish(EventError, BrokerNotice{Code: 504, Message: errors.ErrReconnectExhausted.Error()})
		return
	}
	n := c.attempts
	c.attempts++
	c.reconnectPending = true
	delay := ReconnectDelay(c.cfg.Reconnect, n)
	c.reconnectTimer = time.AfterFunc(delay, func() { c.reconnect() })
	c.mu.Unlock()

	c.log.Warn().Int("attempt", n+1).Dur("delay", delay).Msg("Scheduling reconnect")
}

func (c *Connector) reconnect() {
	c.mu.Lock()
	c.reconnectPending = false
	if c.intentional || c.state == models.StateConnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.setState(models.StateReconnecting)
	c.setState(models.StateConnecting)
	if err := c.establish(context.Background()); err != nil {
		c.mu.Lock()
		c.lastError = err
		c.mu.Unlock()
		c.setState(models.StateError)
		c.scheduleReconnect()
		return
	}
	c.resubscribe()
}

// resubscribe restores market-data subscriptions after a reconnect.
func (c *Connector) resubscribe() {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.symbolPairs))
	for s := range c.symbolPairs {
		symbols = append(symbols, s)
	}
	c.mu.Unlock()

	for _, s := range symbols {
		msg, err := encode(msgSubscribe, 0, subscribePayload{Symbol: s})
		if err == nil {
			err = c.transport.Send(msg)
		}
		if err != nil {
			c.log.Warn().Str("symbol", s).Err(err).Msg("Resubscribe failed")
		}
	}
}

func (c *Connector) cancelScheduledReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
}

// Disconnect closes the session. This is the only path to a terminal
// DISCONNECTED state; no reconnect is scheduled afterwards.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	c.intentional = true
	c.cancelScheduledReconnectLocked()
	c.attempts = 0
	gen := c.connGen
	wasConnected := c.state == models.StateConnected
	c.mu.Unlock()

	if wasConnected {
		// The dispatch loop observes the closed stream and finalizes.
		c.handleConnectionLoss(gen, nil)
		return nil
	}

	c.transport.Close()
	c.setState(models.StateDisconnected)
	return nil
}

// NextOrderID hands out the next broker order id. Ids are seeded by the
// gateway welcome and advance monotonically.
func (c *Connector) NextOrderID() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != models.StateConnected {
		return 0, errors.ErrNotConnected
	}
	id := c.nextOrderID
	c.nextOrderID++
	return id, nil
}

// RequestServerTime sends a server-time probe. The response arrives as an
// EventServerTime on the bus.
func (c *Connector) RequestServerTime() error {
	if !c.IsConnected() {
		return errors.ErrNotConnected
	}
	c.mu.Lock()
	c.lastTimeReqAt = time.Now()
	c.mu.Unlock()

	msg, err := encode(msgServerTime, 0, struct{}{})
	if err != nil {
		return err
	}
	return c.transport.Send(msg)
}

// PlaceOrder submits an order frame to the gateway.
func (c *Connector) PlaceOrder(order *models.Order, symbol string) error {
	if !c.IsConnected() {
		return errors.ErrNotConnected
	}
	msg, err := encode(msgPlaceOrder, order.ID, placeOrderPayload{
		OrderID:    order.ID,
		Symbol:     symbol,
		Side:       string(order.Direction),
		Kind:       string(order.Kind),
		Units:      order.Units,
		LimitPrice: order.LimitPrice,
		Transmit:   true,
		OutsideRTH: true,
	})
	if err != nil {
		return err
	}
	return c.transport.Send(msg)
}

// CancelOrder submits a cancel frame for the given order id.
func (c *Connector) CancelOrder(orderID int64) error {
	if !c.IsConnected() {
		return errors.ErrNotConnected
	}
	msg, err := encode(msgCancelOrder, orderID, cancelOrderPayload{OrderID: orderID})
	if err != nil {
		return err
	}
	return c.transport.Send(msg)
}

// SubscribeMarketData subscribes to ticks for a broker symbol and remembers
// the pair so inbound frames can be mapped back.
func (c *Connector) SubscribeMarketData(pair models.Pair, symbol string) error {
	c.mu.Lock()
	c.symbolPairs[symbol] = pair
	connected := c.state == models.StateConnected
	c.mu.Unlock()
	if !connected {
		return errors.ErrNotConnected
	}
	msg, err := encode(msgSubscribe, 0, subscribePayload{Symbol: symbol})
	if err != nil {
		return err
	}
	return c.transport.Send(msg)
}

// UnsubscribeMarketData drops a market-data subscription.
func (c *Connector) UnsubscribeMarketData(symbol string) error {
	c.mu.Lock()
	delete(c.symbolPairs, symbol)
	connected := c.state == models.StateConnected
	c.mu.Unlock()
	if !connected {
		return errors.ErrNotConnected
	}
	msg, err := encode(msgUnsubscribe, 0, subscribePayload{Symbol: symbol})
	if err != nil {
		return err
	}
	return c.transport.Send(msg)
}

func (c *Connector) pairForSymbol(symbol string) models.Pair {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.symbolPairs[symbol]; ok {
		return p
	}
	if len(symbol) == 6 {
		return models.Pair(symbol[:3] + "/" + symbol[3:])
	}
	return models.Pair(symbol)
}

// handleMessage decodes one inbound frame into its typed event.
func (c *Connector) handleMessage(msg Message) {
	switch msg.Type {
	case msgServerTime:
		var p serverTimePayload
		if decodeJSON(msg.Data, &p) != nil {
			return
		}
		c.mu.Lock()
		latency := time.Duration(0)
		if !c.lastTimeReqAt.IsZero() {
			latency = time.Since(c.lastTimeReqAt)
		}
		c.mu.Unlock()
		c.bus.Publish(EventServerTime, ServerTime{
			Time:    time.UnixMilli(p.EpochMs),
			Latency: latency,
		})

	case msgOrderStatus:
		var p orderStatusPayload
		if decodeJSON(msg.Data, &p) != nil {
			return
		}
		c.bus.Publish(EventOrderStatus, OrderStatusUpdate{
			OrderID:      p.OrderID,
			Status:       models.OrderStatus(p.Status),
			FilledUnits:  p.Filled,
			Remaining:    p.Remaining,
			AvgFillPrice: p.AvgFillPrice,
			Code:         p.Code,
			Message:      p.Message,
		})

	case msgExecution:
		var p executionPayload
		if decodeJSON(msg.Data, &p) != nil {
			return
		}
		c.bus.Publish(EventExecution, ExecutionReport{
			OrderID: p.OrderID,
			ExecID:  p.ExecID,
			Pair:    c.pairForSymbol(p.Symbol),
			Side:    models.Direction(p.Side),
			Units:   p.Units,
			Price:   p.Price,
			Time:    time.UnixMilli(p.TimeMs),
		})

	case msgPosition:
		var p positionPayload
		if decodeJSON(msg.Data, &p) != nil {
			return
		}
		c.bus.Publish(EventPosition, models.Position{
			Pair:         c.pairForSymbol(p.Symbol),
			Units:        p.Units,
			AveragePrice: p.AveragePrice,
			UnrealizedPL: p.UnrealizedPL,
			UpdatedAt:    time.Now(),
		})

	case msgAccount:
		var p accountPayload
		if decodeJSON(msg.Data, &p) != nil {
			return
		}
		c.bus.Publish(EventAccountUpdate, models.AccountValue{
			Key:       p.Key,
			Value:     p.Value,
			Currency:  p.Currency,
			UpdatedAt: time.Now(),
		})

	case msgTick:
		var p tickPayload
		if decodeJSON(msg.Data, &p) != nil {
			return
		}
		c.bus.Publish(EventTickPrice, models.Tick{
			Pair:      c.pairForSymbol(p.Symbol),
			Bid:       p.Bid,
			Ask:       p.Ask,
			Last:      p.Last,
			BidSize:   p.BidSize,
			AskSize:   p.AskSize,
			Timestamp: time.UnixMilli(p.TimeMs),
		})

	case msgError:
		var p errorPayload
		if decodeJSON(msg.Data, &p) != nil {
			return
		}
		c.handleBrokerNotice(p)
	}
}

// handleBrokerNotice classifies a coded gateway message: informational
// notices are logged, connectivity codes drive the reconnect path, and
// everything else is surfaced on the error event.
func (c *Connector) handleBrokerNotice(p errorPayload) {
	be := errors.NewBrokerError(p.Code, p.Message, nil)
	switch {
	case be.IsInformational():
		c.log.Debug().Int("code", p.Code).Str("message", p.Message).Msg("Broker notice")
	case be.IsConnectivity():
		c.log.Warn().Int("code", p.Code).Str("message", p.Message).Msg("Broker connectivity error")
		c.bus.Publish(EventError, BrokerNotice{Code: p.Code, Message: p.Message})
		c.ForceReconnect(be)
		return
	default:
		c.log.Error().Int("code", p.Code).Str("message", p.Message).Msg("Broker error")
	}
	c.bus.Publish(EventError, BrokerNotice{Code: p.Code, Message: p.Message})
}

// ConnectorStatus is a point-in-time snapshot for the dashboard layer.
type ConnectorStatus struct {
	State             models.ConnectionState
	Connected         bool
	ReconnectAttempts int
	NextOrderID       int64
	ConnectedAt       time.Time
	Uptime            time.Duration
	LastError         string
}

// Status returns a snapshot of the connector.
func (c *Connector) Status() ConnectorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := ConnectorStatus{
		State:             c.state,
		Connected:         c.state == models.StateConnected,
		ReconnectAttempts: c.attempts,
		NextOrderID:       c.nextOrderID,
		ConnectedAt:       c.connectedAt,
	}
	if s.Connected && !c.connectedAt.IsZero() {
		s.Uptime = time.Since(c.connectedAt)
	}
	if c.lastError != nil {
		s.LastError = c.lastError.Error()
	}
	return s
}

func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(data, v)
}
