// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	ErrNotConnected         = errors.New("broker not connected")
	ErrConnectionInProgress = errors.New("connection already in progress")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrReconnectDisabled    = errors.New("automatic reconnection disabled")
	ErrReconnectExhausted   = errors.New("reconnect attempts exhausted")
	ErrTimeout              = errors.New("operation timed out")
	ErrOrderRejected        = errors.New("order rejected")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrSpreadTooWide        = errors.New("spread exceeds configured maximum")
	ErrTradeNotAllowed      = errors.New("trade not allowed")
	ErrLiveTradingDisabled  = errors.New("live trading not allowed by configuration")
	ErrUnknownPair          = errors.New("unknown currency pair")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDatabaseError        = errors.New("database error")
)

// Broker error codes that indicate a transient condition worth retrying.
// These mirror the connectivity/busy codes the brokerage gateway reports.
var retryableBrokerCodes = map[int]bool{
	1100: true, // connectivity lost
	1101: true, // connectivity restored, data lost
	1102: true, // connectivity restored, data maintained
	2103: true, // market data farm connection broken
	2105: true, // historical data farm connection broken
	2110: true, // connectivity between server and gateway broken
	502:  true, // couldn't connect
	503:  true, // gateway busy
	504:  true, // not connected
}

// Broker codes that are purely informational status notices, never failures.
var informationalBrokerCodes = map[int]bool{
	2104: true, // market data farm connection is OK
	2106: true, // historical data farm connection is OK
	2107: true, // historical data farm inactive
	2108: true, // market data farm inactive
	2119: true, // market data farm is connecting
	2158: true, // sec-def data farm connection is OK
	399:  true, // order held / outside regular trading hours notice
}

// Codes that must drive the connection state machine into reconnection.
var connectivityBrokerCodes = map[int]bool{
	1100: true,
	2110: true,
	502:  true,
	504:  true,
}

// BrokerError represents an error reported by the brokerage gateway.
type BrokerError struct {
	Code    int
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%d]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code int, message string, err error) *BrokerError {
	return &BrokerError{Code: code, Message: message, Err: err}
}

// IsInformational reports whether the error is a status notice that should
// be logged but never treated as a failure.
func (e *BrokerError) IsInformational() bool {
	return informationalBrokerCodes[e.Code]
}

// IsConnectivity reports whether the error should drive the connector's
// reconnect path.
func (e *BrokerError) IsConnectivity() bool {
	return connectivityBrokerCodes[e.Code]
}

// IsRetryable classifies an error as transient. Retryable errors are a
// fixed set of broker codes plus message patterns for timeout, connection
// and busy conditions.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var be *BrokerError
	if errors.As(err, &be) {
		if retryableBrokerCodes[be.Code] {
			return true
		}
		if be.IsInformational() {
			return false
		}
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrConnectionFailed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "timed out", "connection", "busy", "temporarily unavailable"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID int64
	Pair    string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%d] %s %s: %s: %v", e.OrderID, e.Action, e.Pair, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%d] %s %s: %s", e.OrderID, e.Action, e.Pair, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID int64, pair, action, reason string, err error) *OrderError {
	return &OrderError{OrderID: orderID, Pair: pair, Action: action, Reason: reason, Err: err}
}

// RiskError represents a trade-admission violation.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
