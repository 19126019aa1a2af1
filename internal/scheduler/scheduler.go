// Package scheduler owns the pending conditional order set and decides when
// a waiting order triggers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/internal/feed"
	apperrors "dex_trader/pkg/errors"
	"dex_trader/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Scheduler watches pending stop, stop-limit and take-profit orders and
// emits them on the Triggered channel once their price condition is met.
// It reacts to every price update and additionally sweeps the whole set on
// a timer, so a missed update never strands an order past its trigger.
//
// Each pending order leaves the Waiting state exactly once: trigger, cancel
// and expiry all contend on the same guarded transition, so a cancellation
// racing a trigger resolves to exactly one of the two.
type Scheduler struct {
	cfg     config.SchedulerConfig
	cache   core.IPriceCache
	updates <-chan feed.PriceUpdate
	metrics *telemetry.MetricsHolder
	logger  core.ILogger

	mu      sync.Mutex
	pending map[string]*core.PendingOrder

	triggered chan *core.Order

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	now     func() time.Time
}

// New creates a scheduler. updates is the feed subscription it reacts to.
func New(cfg config.SchedulerConfig, cache core.IPriceCache, updates <-chan feed.PriceUpdate, metrics *telemetry.MetricsHolder, logger core.ILogger) *Scheduler {
	buffer := cfg.TriggerBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Scheduler{
		cfg:       cfg,
		cache:     cache,
		updates:   updates,
		metrics:   metrics,
		logger:    logger.WithField("component", "scheduler"),
		pending:   make(map[string]*core.PendingOrder),
		triggered: make(chan *core.Order, buffer),
		now:       time.Now,
	}
}

// SetClock injects a clock for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start launches the watch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	s.logger.Info("Scheduler started", "sweep_interval", s.cfg.SweepInterval())
	return nil
}

// Stop halts the watch loop. Pending orders stay in the set untriggered.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Scheduler stopped")
	return nil
}

// Enqueue registers a conditional order. The order must carry the price its
// type triggers on.
func (s *Scheduler) Enqueue(order *core.Order) (*core.PendingOrder, error) {
	if !order.Type.IsConditional() {
		return nil, fmt.Errorf("order %s type %s is not conditional", order.ID, order.Type)
	}
	if _, ok := triggerPrice(order); !ok {
		return nil, fmt.Errorf("order %s has no trigger price", order.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[order.ID]; exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDuplicateOrder, order.ID)
	}

	po := &core.PendingOrder{
		ID:        order.ID,
		Order:     order,
		Status:    core.PendingWaiting,
		CreatedAt: s.now(),
	}
	s.pending[order.ID] = po

	s.logger.Info("Order enqueued",
		"order_id", order.ID,
		"pair", order.Pair,
		"type", order.Type,
		"side", order.Side)
	s.publishGauge()

	// Evaluate immediately: the condition may already hold at enqueue time.
	if snap, ok := s.cache.Read(order.Pair); ok {
		s.evaluateLocked(po, snap.Price)
	}

	return s.copyLocked(po), nil
}

// Cancel transitions a waiting order to Cancelled. Returns OrderNotFound for
// unknown IDs. Cancelling an order that already triggered, expired or was
// cancelled is a no-op.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, id)
	}
	if po.Status != core.PendingWaiting {
		s.logger.Debug("Cancel after terminal transition ignored", "order_id", id, "status", po.Status)
		return nil
	}

	po.Status = core.PendingCancelled
	s.logger.Info("Pending order cancelled", "order_id", id)
	s.publishGauge()
	return nil
}

// Pending returns copies of all pending records, terminal ones included.
func (s *Scheduler) Pending() []core.PendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.PendingOrder, 0, len(s.pending))
	for _, po := range s.pending {
		out = append(out, *s.copyLocked(po))
	}
	return out
}

// Triggered returns the channel of orders whose condition fired. Stop and
// take-profit orders come out as market orders; a stop-limit comes out as a
// limit order at its limit price.
func (s *Scheduler) Triggered() <-chan *core.Order {
	return s.triggered
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-s.updates:
			if !ok {
				return
			}
			s.onPrice(update.Pair, update.Price)
		case <-ticker.C:
			s.sweep()
		}
	}
}

// onPrice evaluates every waiting order for the updated pair.
func (s *Scheduler) onPrice(pair string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, po := range s.pending {
		if po.Status == core.PendingWaiting && po.Order.Pair == pair {
			s.evaluateLocked(po, price)
		}
	}
}

// sweep re-checks all waiting orders against the cache and expires stale ones.
func (s *Scheduler) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, po := range s.pending {
		if po.Status != core.PendingWaiting {
			continue
		}

		if now.Sub(po.CreatedAt) > s.cfg.MaxPendingAge() {
			po.Status = core.PendingExpired
			s.logger.Warn("Pending order expired", "order_id", po.ID, "age", now.Sub(po.CreatedAt))
			s.publishGauge()
			continue
		}

		if snap, ok := s.cache.Read(po.Order.Pair); ok {
			s.evaluateLocked(po, snap.Price)
		}
		po.LastCheckedAt = now
	}
}

// evaluateLocked fires the trigger when the condition holds. The status write
// happens under the set lock before the order is emitted, so concurrent
// evaluations of the same record can never fire twice.
func (s *Scheduler) evaluateLocked(po *core.PendingOrder, price decimal.Decimal) {
	po.LastCheckedAt = s.now()

	trigger, ok := triggerPrice(po.Order)
	if !ok {
		return
	}
	if !conditionMet(po.Order.Type, po.Order.Side, price, trigger) {
		return
	}

	po.Status = core.PendingTriggered
	out := executableOrder(po.Order)

	select {
	case s.triggered <- out:
	default:
		// The consumer is the engine loop; a full channel means it is wedged.
		// The order goes back to Waiting so the next update or sweep retries
		// the emit instead of stranding a triggered order that never ran.
		po.Status = core.PendingWaiting
		s.logger.Error("Trigger channel full, order stays pending", "order_id", po.ID)
		return
	}

	s.logger.Info("Pending order triggered",
		"order_id", po.ID,
		"pair", po.Order.Pair,
		"trigger", trigger.String(),
		"price", price.String())
	if s.metrics != nil {
		s.metrics.TriggersTotal.Add(context.Background(), 1)
	}
	s.publishGauge()
}

// triggerPrice returns the price the order's condition compares against.
func triggerPrice(order *core.Order) (decimal.Decimal, bool) {
	switch order.Type {
	case core.OrderTypeStop, core.OrderTypeStopLimit:
		if order.StopPrice.Valid {
			return order.StopPrice.Decimal, true
		}
	case core.OrderTypeTakeProfit:
		if order.TakeProfitPrice.Valid {
			return order.TakeProfitPrice.Decimal, true
		}
	}
	return decimal.Zero, false
}

// conditionMet implements the trigger rules. A sell stop protects a long and
// fires when price falls to the stop; a buy stop fires on a rise. Take-profit
// is the mirror image.
func conditionMet(t core.OrderType, side core.OrderSide, price, trigger decimal.Decimal) bool {
	switch t {
	case core.OrderTypeStop, core.OrderTypeStopLimit:
		if side.IsSell() {
			return price.LessThanOrEqual(trigger)
		}
		return price.GreaterThanOrEqual(trigger)
	case core.OrderTypeTakeProfit:
		if side.IsSell() {
			return price.GreaterThanOrEqual(trigger)
		}
		return price.LessThanOrEqual(trigger)
	}
	return false
}

// executableOrder converts a triggered conditional into the order that is
// actually submitted. Stop-limit keeps its limit price; everything else goes
// out at market.
func executableOrder(order *core.Order) *core.Order {
	out := *order
	if order.Type == core.OrderTypeStopLimit && order.LimitPrice.Valid {
		out.Type = core.OrderTypeLimit
	} else {
		out.Type = core.OrderTypeMarket
		out.LimitPrice = decimal.NullDecimal{}
	}
	out.StopPrice = decimal.NullDecimal{}
	out.TakeProfitPrice = decimal.NullDecimal{}
	return &out
}

func (s *Scheduler) copyLocked(po *core.PendingOrder) *core.PendingOrder {
	cp := *po
	return &cp
}

func (s *Scheduler) publishGauge() {
	if s.metrics == nil {
		return
	}
	waiting := 0
	for _, po := range s.pending {
		if po.Status == core.PendingWaiting {
			waiting++
		}
	}
	s.metrics.SetPendingOrders(int64(waiting))
}
