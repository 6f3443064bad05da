package broker

import (
	"sync"
	"time"

	"forex-trader/internal/models"
)

// EventType enumerates the typed events the connector emits.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventDisconnected  EventType = "disconnected"
	EventStateChange   EventType = "stateChange"
	EventError         EventType = "error"
	EventOrderStatus   EventType = "orderStatus"
	EventExecution     EventType = "execution"
	EventPosition      EventType = "position"
	EventAccountUpdate EventType = "accountUpdate"
	EventTickPrice     EventType = "tickPrice"
	EventTickSize      EventType = "tickSize"
	EventServerTime    EventType = "serverTime"
	EventNextOrderID   EventType = "nextOrderId"
)

// Event is one published connector event.
type Event struct {
	Type    EventType
	Payload any
	At      time.Time
}

// StateChange is the payload of EventStateChange. It is emitted before any
// mode-specific side effect of the transition.
type StateChange struct {
	Old models.ConnectionState
	New models.ConnectionState
}

// OrderStatusUpdate is the payload of EventOrderStatus.
type OrderStatusUpdate struct {
	OrderID      int64
	Status       models.OrderStatus
	FilledUnits  float64
	Remaining    float64
	AvgFillPrice float64
	Code         int
	Message      string
}

// ExecutionReport is the payload of EventExecution.
type ExecutionReport struct {
	OrderID int64
	ExecID  string
	Pair    models.Pair
	Side    models.Direction
	Units   float64
	Price   float64
	Time    time.Time
}

// ServerTime is the payload of EventServerTime.
type ServerTime struct {
	Time    time.Time
	Latency time.Duration
}

// BrokerNotice is the payload of EventError: a coded message from the
// gateway, which may be informational rather than a failure.
type BrokerNotice struct {
	Code    int
	Message string
}

// Bus is a typed pub/sub fan-out for connector events. Subscribers hold a
// revocable handle so deregistration cannot leave dangling references.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]chan Event)}
}

// Subscribe registers a listener for an event type and returns the channel
// together with an unsubscribe function that closes it.
func (b *Bus) Subscribe(t EventType, buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	b.subs[t] = append(b.subs[t], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[t]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fans the payload out to subscribers without blocking: a slow
// subscriber's events are dropped rather than stalling the connector.
func (b *Bus) Publish(t EventType, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev := Event{Type: t, Payload: payload, At: time.Now()}
	for _, ch := range b.subs[t] {
		select {
		case ch <- ev:
		default:
		}
	}
}
