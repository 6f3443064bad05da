// Package marketdata caches the latest account values, positions and
// prices streamed by the broker connector. It is a pure consumer of
// connector events: it owns no state machine and exposes read accessors
// only.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trader/internal/broker"
	"forex-trader/internal/contract"
	"forex-trader/internal/models"
)

// Account value keys reported by the gateway.
const (
	AccountBalance      = "balance"
	AccountEquity       = "equity"
	AccountMarginUsed   = "margin_used"
	AccountMarginAvail  = "margin_available"
	AccountUnrealizedPL = "unrealized_pl"
)

// Service subscribes to connector events and keeps the latest snapshot of
// each pair's quote, each position, and each account value.
type Service struct {
	conn      *broker.Connector
	contracts *contract.Resolver
	log       zerolog.Logger

	mu        sync.RWMutex
	quotes    map[models.Pair]models.Quote
	positions map[models.Pair]models.Position
	account   map[string]models.AccountValue
	cancel    context.CancelFunc
}

// NewService creates a market-data service.
func NewService(conn *broker.Connector, contracts *contract.Resolver, logger zerolog.Logger) *Service {
	return &Service{
		conn:      conn,
		contracts: contracts,
		log:       logger.With().Str("component", "marketdata").Logger(),
		quotes:    make(map[models.Pair]models.Quote),
		positions: make(map[models.Pair]models.Position),
		account:   make(map[string]models.AccountValue),
	}
}

// Start begins consuming connector events.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	ticks, unsubTicks := s.conn.Events().Subscribe(broker.EventTickPrice, 256)
	positions, unsubPos := s.conn.Events().Subscribe(broker.EventPosition, 64)
	account, unsubAcct := s.conn.Events().Subscribe(broker.EventAccountUpdate, 64)

	go func() {
		defer unsubTicks()
		defer unsubPos()
		defer unsubAcct()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ticks:
				if tick, ok := ev.Payload.(models.Tick); ok {
					s.applyTick(tick)
				}
			case ev := <-positions:
				if pos, ok := ev.Payload.(models.Position); ok {
					s.applyPosition(pos)
				}
			case ev := <-account:
				if av, ok := ev.Payload.(models.AccountValue); ok {
					s.applyAccountValue(av)
				}
			}
		}
	}()
}

// Stop halts event consumption.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Subscribe requests streaming market data for a pair.
func (s *Service) Subscribe(pair models.Pair) error {
	c, err := s.contracts.Resolve(pair)
	if err != nil {
		return err
	}
	return s.conn.SubscribeMarketData(pair, c.Symbol)
}

// Unsubscribe drops streaming market data for a pair.
func (s *Service) Unsubscribe(pair models.Pair) error {
	c, err := s.contracts.Resolve(pair)
	if err != nil {
		return err
	}
	return s.conn.UnsubscribeMarketData(c.Symbol)
}

func (s *Service) applyTick(tick models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotes[tick.Pair]
	q.Pair = tick.Pair
	if tick.Bid > 0 {
		q.Bid = tick.Bid
	}
	if tick.Ask > 0 {
		q.Ask = tick.Ask
	}
	if tick.Last > 0 {
		q.Last = tick.Last
	}
	q.UpdatedAt = tick.Timestamp
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = time.Now()
	}
	s.quotes[tick.Pair] = q
}

func (s *Service) applyPosition(pos models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos.Units == 0 {
		delete(s.positions, pos.Pair)
		return
	}
	s.positions[pos.Pair] = pos
}

func (s *Service) applyAccountValue(av models.AccountValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account[av.Key] = av
}

// Quote returns the latest cached quote for a pair.
func (s *Service) Quote(pair models.Pair) (models.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[pair]
	return q, ok
}

// Positions returns a copy of all cached positions.
func (s *Service) Positions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// AccountValue returns one cached account metric.
func (s *Service) AccountValue(key string) (models.AccountValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	av, ok := s.account[key]
	return av, ok
}

// Balance returns the cached account balance, or zero when unknown.
func (s *Service) Balance() float64 {
	if av, ok := s.AccountValue(AccountBalance); ok {
		return av.Value
	}
	return 0
}

// Status summarizes the cache for the dashboard layer.
type Status struct {
	QuotedPairs   int
	OpenPositions int
	AccountKeys   int
}

// Status returns a snapshot of the cache.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		QuotedPairs:   len(s.quotes),
		OpenPositions: len(s.positions),
		AccountKeys:   len(s.account),
	}
}
