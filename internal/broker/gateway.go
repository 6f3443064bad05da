package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// The brokerage gateway speaks a JSON frame protocol over a websocket.
// Each frame carries a type tag, an optional request-correlation id, and a
// type-specific payload.

// Message is one frame of the gateway protocol.
type Message struct {
	Type  string          `json:"type"`
	ReqID int64           `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound frame types.
const (
	msgHello       = "hello"
	msgServerTime  = "server_time"
	msgPlaceOrder  = "place_order"
	msgCancelOrder = "cancel_order"
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
)

// Inbound frame types.
const (
	msgWelcome     = "welcome"
	msgOrderStatus = "order_status"
	msgExecution   = "execution"
	msgPosition    = "position"
	msgAccount     = "account"
	msgTick        = "tick"
	msgError       = "error"
)

type helloPayload struct {
	ClientID int `json:"client_id"`
}

type welcomePayload struct {
	NextOrderID  int64 `json:"next_order_id"`
	ServerTimeMs int64 `json:"server_time_ms"`
}

type serverTimePayload struct {
	EpochMs int64 `json:"epoch_ms"`
}

type orderStatusPayload struct {
	OrderID      int64   `json:"order_id"`
	Status       string  `json:"status"`
	Filled       float64 `json:"filled"`
	Remaining    float64 `json:"remaining"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	Code         int     `json:"code,omitempty"`
	Message      string  `json:"message,omitempty"`
}

type executionPayload struct {
	OrderID int64   `json:"order_id"`
	ExecID  string  `json:"exec_id"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Units   float64 `json:"units"`
	Price   float64 `json:"price"`
	TimeMs  int64   `json:"time_ms"`
}

type positionPayload struct {
	Symbol       string  `json:"symbol"`
	Units        float64 `json:"units"`
	AveragePrice float64 `json:"avg_price"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

type accountPayload struct {
	Key      string  `json:"key"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type tickPayload struct {
	Symbol  string  `json:"symbol"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Last    float64 `json:"last"`
	BidSize int64   `json:"bid_size"`
	AskSize int64   `json:"ask_size"`
	TimeMs  int64   `json:"time_ms"`
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type placeOrderPayload struct {
	OrderID    int64   `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Kind       string  `json:"kind"`
	Units      float64 `json:"units"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	// Forex trades continuously: always transmit immediately and allow
	// execution outside standard equity trading hours.
	Transmit   bool `json:"transmit"`
	OutsideRTH bool `json:"outside_rth"`
}

type cancelOrderPayload struct {
	OrderID int64 `json:"order_id"`
}

type subscribePayload struct {
	Symbol string `json:"symbol"`
}

func encode(msgType string, reqID int64, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s frame: %w", msgType, err)
	}
	return Message{Type: msgType, ReqID: reqID, Data: data}, nil
}

// Transport is the wire connection to the gateway. The concrete transport
// is a websocket; tests substitute an in-memory fake.
type Transport interface {
	// Dial opens the connection and returns the inbound frame stream.
	// The stream is closed when the connection is lost.
	Dial(ctx context.Context, url string) (<-chan Message, error)
	// Send writes one frame. Safe for concurrent use.
	Send(msg Message) error
	Close() error
}

// WSTransport implements Transport over gorilla/websocket.
type WSTransport struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewWSTransport creates an unconnected websocket transport.
func NewWSTransport() *WSTransport {
	return &WSTransport{}
}

// Dial connects to the gateway and starts the read pump.
func (t *WSTransport) Dial(ctx context.Context, url string) (<-chan Message, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway %s: %w", url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	recv := make(chan Message, 256)
	go t.readPump(conn, recv)
	return recv, nil
}

func (t *WSTransport) readPump(conn *websocket.Conn, recv chan<- Message) {
	defer close(recv)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		recv <- msg
	}
}

// Send writes a frame, serialized behind a write mutex because gorilla
// connections allow only one concurrent writer.
func (t *WSTransport) Send(msg Message) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

// Close shuts the websocket down.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
