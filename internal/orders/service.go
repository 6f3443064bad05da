// Package orders owns the broker order lifecycle: placement with retry,
// status tracking, cancellation and fill resolution.
package orders

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trader/internal/broker"
	"forex-trader/internal/config"
	"forex-trader/internal/contract"
	"forex-trader/internal/errors"
	"forex-trader/internal/models"
	"forex-trader/internal/resilience"
	"forex-trader/internal/store"
	"forex-trader/pkg/utils"
)

const (
	terminalRetention = time.Hour
	maxOrderAge       = 24 * time.Hour
	sweepInterval     = time.Hour
	retryDelayCeiling = 10 * time.Second
)

// BrokerLink is the slice of the connector the order service depends on.
type BrokerLink interface {
	NextOrderID() (int64, error)
	PlaceOrder(order *models.Order, symbol string) error
	CancelOrder(orderID int64) error
	Events() *broker.Bus
	IsConnected() bool
}

// QuoteSource supplies the latest cached quote for a pair.
type QuoteSource interface {
	Quote(pair models.Pair) (models.Quote, bool)
}

// FillResult is the terminal outcome of a placed order.
type FillResult struct {
	Order         models.Order
	AssumedFilled bool // resolved optimistically after the fill timeout
	Err           error
}

// Placement is the immediate result of placing an order. Fill delivers
// exactly one FillResult when the order resolves.
type Placement struct {
	Order *models.Order
	Fill  <-chan FillResult
}

type pendingOrder struct {
	order         *models.Order
	fill          chan FillResult
	timer         *time.Timer
	intendedPrice float64
	resolved      bool
}

// Service tracks every in-flight broker order for the process.
type Service struct {
	cfg       config.OrderConfig
	link      BrokerLink
	quotes    QuoteSource
	contracts *contract.Resolver
	breaker   *resilience.Breaker
	db        store.DataStore
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[int64]*pendingOrder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the order service. The store may be nil when running
// without persistence.
func NewService(cfg config.OrderConfig, link BrokerLink, quotes QuoteSource, contracts *contract.Resolver, db store.DataStore, logger zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		link:      link,
		quotes:    quotes,
		contracts: contracts,
		breaker:   resilience.NewBreaker("order-submission", resilience.DefaultBreakerConfig(), logger),
		db:        db,
		log:       logger.With().Str("component", "orders").Logger(),
		pending:   make(map[int64]*pendingOrder),
	}
}

// Start launches the event pump and the periodic retention sweep.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	statusCh, unsubStatus := s.link.Events().Subscribe(broker.EventOrderStatus, 64)
	execCh, unsubExec := s.link.Events().Subscribe(broker.EventExecution, 64)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubStatus()
		defer unsubExec()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-statusCh:
				if !ok {
					return
				}
				if update, valid := ev.Payload.(broker.OrderStatusUpdate); valid {
					s.applyStatus(update)
				}
			case ev, ok := <-execCh:
				if !ok {
					return
				}
				if rep, valid := ev.Payload.(broker.ExecutionReport); valid {
					s.applyExecution(rep)
				}
			case <-ticker.C:
				s.sweep(time.Now())
			}
		}
	}()
}

// Stop shuts the service down.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// PlaceMarketOrder submits a market order after the spread pre-check.
// tradeID correlates the order to a locally owned trade record; pass ""
// for an uncorrelated order.
func (s *Service) PlaceMarketOrder(ctx context.Context, pair models.Pair, dir models.Direction, lots float64, tradeID string) (*Placement, error) {
	return s.place(ctx, pair, dir, models.OrderKindMarket, lots, 0, tradeID)
}

// PlaceLimitOrder submits a limit order after the spread pre-check.
func (s *Service) PlaceLimitOrder(ctx context.Context, pair models.Pair, dir models.Direction, lots float64, limitPrice float64, tradeID string) (*Placement, error) {
	return s.place(ctx, pair, dir, models.OrderKindLimit, lots, limitPrice, tradeID)
}

// PlaceMarketOrderWithRetry submits a market order, retrying transient
// failures with exponential backoff. At most cfg.RetryMaxAttempts attempts
// are made; non-retryable errors fail immediately.
func (s *Service) PlaceMarketOrderWithRetry(ctx context.Context, pair models.Pair, dir models.Direction, lots float64, tradeID string) (*Placement, error) {
	maxAttempts := s.cfg.RetryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		placement, err := s.place(ctx, pair, dir, models.OrderKindMarket, lots, 0, tradeID)
		if err == nil {
			return placement, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := RetryDelay(s.cfg, attempt)
		s.log.Warn().
			Str("pair", string(pair)).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("Order placement failed; retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("order placement failed after %d attempts: %w", maxAttempts, lastErr)
}

// RetryDelay returns the backoff before the (attempt+1)th placement try:
// baseDelay * 2^(attempt-1), counting attempts from 1.
func RetryDelay(cfg config.OrderConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return utils.CalculateBackoff(attempt-1, cfg.RetryBaseDelay(), retryDelayCeiling, 2.0)
}

func (s *Service) place(ctx context.Context, pair models.Pair, dir models.Direction, kind models.OrderKind, lots float64, limitPrice float64, tradeID string) (*Placement, error) {
	con, err := s.contracts.Resolve(pair)
	if err != nil {
		return nil, err
	}
	if lots < con.MinLot || lots > con.MaxLot {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "%s lot size %.2f outside [%.2f, %.2f]", pair, lots, con.MinLot, con.MaxLot)
	}
	if !s.link.IsConnected() {
		return nil, errors.ErrNotConnected
	}

	quote, haveQuote := s.quotes.Quote(pair)
	if haveQuote {
		if err := s.checkSpread(pair, con, quote); err != nil {
			return nil, err
		}
	}

	id, err := s.link.NextOrderID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		ID:         id,
		Pair:       pair,
		Direction:  dir,
		Kind:       kind,
		Lots:       lots,
		Units:      con.LotsToUnits(lots),
		LimitPrice: limitPrice,
		Status:     models.OrderPending,
		TradeID:    tradeID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	intended := limitPrice
	if kind == models.OrderKindMarket && haveQuote {
		if dir == models.DirectionBuy {
			intended = quote.Ask
		} else {
			intended = quote.Bid
		}
	}

	p := &pendingOrder{
		order:         order,
		fill:          make(chan FillResult, 1),
		intendedPrice: intended,
	}

	s.mu.Lock()
	s.pending[id] = p
	s.mu.Unlock()

	s.persistOrder(ctx, order)

	submitErr := s.breaker.Execute(func() error {
		return s.link.PlaceOrder(order, brokerSymbol(pair))
	})
	if submitErr != nil {
		s.mu.Lock()
		order.Status = models.OrderError
		order.ErrorMessage = submitErr.Error()
		order.CompletedAt = time.Now()
		delete(s.pending, id)
		s.mu.Unlock()
		s.persistUpdate(ctx, order)
		return nil, errors.NewOrderError(id, string(pair), "place", "submission failed", submitErr)
	}

	s.mu.Lock()
	order.Status = models.OrderSubmitted
	order.UpdatedAt = time.Now()
	p.timer = time.AfterFunc(s.cfg.FillTimeout(), func() { s.resolveOptimistic(id) })
	s.mu.Unlock()

	s.persistUpdate(ctx, order)
	s.log.Info().
		Int64("order_id", id).
		Str("pair", string(pair)).
		Str("direction", string(dir)).
		Str("kind", string(kind)).
		Float64("lots", lots).
		Msg("Order submitted")

	return &Placement{Order: order, Fill: p.fill}, nil
}

// checkSpread rejects placement when the live spread exceeds the configured
// limit for the pair. No order is created or submitted on rejection.
func (s *Service) checkSpread(pair models.Pair, con contract.Contract, quote models.Quote) error {
	if quote.Bid <= 0 || quote.Ask <= 0 {
		return nil
	}
	measured := con.PriceToPips(quote.Ask - quote.Bid)
	limit := s.cfg.SpreadLimit(string(pair))
	if limit > 0 && measured > limit {
		return errors.Wrapf(errors.ErrSpreadTooWide,
			"%s spread %.1f pips exceeds limit %.1f pips", pair, measured, limit)
	}
	return nil
}

// resolveOptimistic fires when the fill timeout elapses without a terminal
// status. Market orders against a liquid gateway almost always filled; the
// order is assumed filled at the intended price and flagged so downstream
// records carry the uncertainty.
func (s *Service) resolveOptimistic(id int64) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || p.resolved || p.order.Status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	p.resolved = true
	order := *p.order
	if order.AvgFillPrice == 0 {
		order.AvgFillPrice = p.intendedPrice
	}
	if order.FilledUnits == 0 {
		order.FilledUnits = order.Units
	}
	fill := p.fill
	s.mu.Unlock()

	s.log.Warn().
		Int64("order_id", id).
		Str("pair", string(order.Pair)).
		Msg("No fill confirmation within timeout; assuming filled")

	fill <- FillResult{Order: order, AssumedFilled: true}
}

// applyStatus applies a broker status update. Transitions only move forward;
// stale or out-of-order updates are dropped.
func (s *Service) applyStatus(update broker.OrderStatusUpdate) {
	s.mu.Lock()
	p, ok := s.pending[update.OrderID]
	if !ok {
		s.mu.Unlock()
		return
	}
	order := p.order
	if order.Status != update.Status && !order.Status.CanTransition(update.Status) {
		s.mu.Unlock()
		s.log.Debug().
			Int64("order_id", update.OrderID).
			Str("current", string(order.Status)).
			Str("received", string(update.Status)).
			Msg("Ignoring backward order status update")
		return
	}

	order.Status = update.Status
	order.UpdatedAt = time.Now()
	if update.FilledUnits > 0 {
		order.FilledUnits = update.FilledUnits
	}
	if update.AvgFillPrice > 0 {
		order.AvgFillPrice = update.AvgFillPrice
	}
	if update.Code != 0 {
		order.ErrorCode = update.Code
		order.ErrorMessage = update.Message
	}

	var result *FillResult
	var fill chan FillResult
	if order.Status.IsTerminal() {
		order.CompletedAt = time.Now()
		if p.timer != nil {
			p.timer.Stop()
		}
		if !p.resolved {
			p.resolved = true
			r := FillResult{Order: *order}
			if order.Status != models.OrderFilled {
				r.Err = errors.NewOrderError(order.ID, string(order.Pair), "fill",
					strings.ToLower(string(order.Status)), nil)
			}
			result = &r
			fill = p.fill
		}
	}
	snapshot := *order
	intended := p.intendedPrice
	s.mu.Unlock()

	s.persistUpdate(context.Background(), &snapshot)
	s.log.Info().
		Int64("order_id", snapshot.ID).
		Str("status", string(snapshot.Status)).
		Float64("filled_units", snapshot.FilledUnits).
		Msg("Order status")

	if snapshot.Status == models.OrderFilled {
		s.auditSlippage(&snapshot, intended)
	}
	if result != nil {
		fill <- *result
	}
}

// applyExecution folds a partial execution into the tracked order.
func (s *Service) applyExecution(rep broker.ExecutionReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[rep.OrderID]
	if !ok {
		return
	}
	order := p.order
	prev := order.FilledUnits
	order.FilledUnits += rep.Units
	if order.FilledUnits > 0 {
		order.AvgFillPrice = (order.AvgFillPrice*prev + rep.Price*rep.Units) / order.FilledUnits
	}
	order.UpdatedAt = time.Now()
}

// auditSlippage compares the fill price against the intended price and
// warns when it exceeds the configured tolerance. The fill is never
// rejected; slippage is an audit signal only. It returns the measured
// slippage in pips and whether it was within tolerance.
func (s *Service) auditSlippage(order *models.Order, intended float64) (float64, bool) {
	if intended <= 0 || order.AvgFillPrice <= 0 {
		return 0, true
	}
	con, err := s.contracts.Resolve(order.Pair)
	if err != nil {
		return 0, true
	}
	slippage := con.PriceToPips(math.Abs(order.AvgFillPrice - intended))
	acceptable := s.cfg.MaxSlippagePips <= 0 || slippage <= s.cfg.MaxSlippagePips
	if !acceptable {
		s.log.Warn().
			Int64("order_id", order.ID).
			Str("pair", string(order.Pair)).
			Float64("intended", intended).
			Float64("filled", order.AvgFillPrice).
			Float64("slippage_pips", slippage).
			Msg("Fill slippage above tolerance")
	} else {
		s.log.Debug().
			Int64("order_id", order.ID).
			Float64("slippage_pips", slippage).
			Msg("Fill slippage within tolerance")
	}
	return slippage, acceptable
}

// CancelOrder requests cancellation of a tracked, non-terminal order. The
// order moves to PENDING_CANCEL until the gateway confirms.
func (s *Service) CancelOrder(id int64) error {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return errors.ErrOrderNotFound
	}
	if p.order.Status.IsTerminal() {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInvalidOrder, "order %d already %s", id, p.order.Status)
	}
	if p.order.Status.CanTransition(models.OrderPendingCancel) {
		p.order.Status = models.OrderPendingCancel
		p.order.UpdatedAt = time.Now()
	}
	snapshot := *p.order
	s.mu.Unlock()

	s.persistUpdate(context.Background(), &snapshot)
	if err := s.link.CancelOrder(id); err != nil {
		return errors.NewOrderError(id, string(snapshot.Pair), "cancel", "cancel request failed", err)
	}
	s.log.Info().Int64("order_id", id).Msg("Cancel requested")
	return nil
}

// CancelAllOrders requests cancellation of every non-terminal order and
// returns the first error encountered.
func (s *Service) CancelAllOrders() error {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.pending))
	for id, p := range s.pending {
		if !p.order.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := s.CancelOrder(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PendingOrders returns a snapshot of every tracked order.
func (s *Service) PendingOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, *p.order)
	}
	return out
}

// Order returns the tracked order with the given id.
func (s *Service) Order(id int64) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[id]; ok {
		return *p.order, true
	}
	return models.Order{}, false
}

// sweep drops terminal orders held longer than an hour and expires any
// order older than a day, whatever its status.
func (s *Service) sweep(now time.Time) {
	type expired struct {
		fill  chan FillResult
		order models.Order
	}
	var toExpire []expired

	s.mu.Lock()
	for id, p := range s.pending {
		switch {
		case p.order.Status.IsTerminal() && now.Sub(p.order.CompletedAt) > terminalRetention:
			delete(s.pending, id)
		case now.Sub(p.order.CreatedAt) > maxOrderAge:
			if !p.order.Status.IsTerminal() {
				p.order.Status = models.OrderError
				p.order.ErrorMessage = "order expired"
				p.order.CompletedAt = now
				if p.timer != nil {
					p.timer.Stop()
				}
				if !p.resolved {
					p.resolved = true
					toExpire = append(toExpire, expired{fill: p.fill, order: *p.order})
				}
			}
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()

	for _, e := range toExpire {
		s.log.Warn().Int64("order_id", e.order.ID).Msg("Expiring stale order")
		s.persistUpdate(context.Background(), &e.order)
		e.fill <- FillResult{Order: e.order, Err: errors.NewOrderError(e.order.ID, string(e.order.Pair), "fill", "order expired", nil)}
	}
}

func (s *Service) persistOrder(ctx context.Context, order *models.Order) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveOrder(ctx, order); err != nil {
		s.log.Error().Int64("order_id", order.ID).Err(err).Msg("Failed to persist order")
	}
}

// persistUpdate rewrites an already saved order's mutable fields.
func (s *Service) persistUpdate(ctx context.Context, order *models.Order) {
	if s.db == nil {
		return
	}
	if err := s.db.UpdateOrder(ctx, order); err != nil {
		s.log.Error().Int64("order_id", order.ID).Err(err).Msg("Failed to persist order update")
	}
}

// Status is a point-in-time snapshot of the order service.
type Status struct {
	Pending      int
	CircuitState resilience.CircuitState
}

// ServiceStatus returns a snapshot for the dashboard layer.
func (s *Service) ServiceStatus() Status {
	s.mu.Lock()
	n := len(s.pending)
	s.mu.Unlock()
	return Status{Pending: n, CircuitState: s.breaker.State()}
}

// brokerSymbol converts "EUR/USD" to the gateway symbol "EURUSD".
func brokerSymbol(pair models.Pair) string {
	return strings.ReplaceAll(string(pair), "/", "")
}
