package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/internal/feed"
	"dex_trader/internal/mock"
	"dex_trader/internal/pricecache"
	apperrors "dex_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

func testSchedConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		SweepIntervalMs:      1000,
		MaxPendingAgeSeconds: 86400,
		TriggerBuffer:        16,
	}
}

func newTestScheduler(cache core.IPriceCache) *Scheduler {
	updates := make(chan feed.PriceUpdate)
	return New(testSchedConfig(), cache, updates, nil, mock.NewNopLogger())
}

func stopSell(id string, size, stop float64) *core.Order {
	return &core.Order{
		ID:        id,
		Pair:      "SOL/USDC",
		Side:      core.SideSell,
		Type:      core.OrderTypeStop,
		Size:      decimal.NewFromFloat(size),
		StopPrice: decimal.NewNullDecimal(decimal.NewFromFloat(stop)),
		CreatedAt: time.Now(),
	}
}

func drainOne(t *testing.T, ch <-chan *core.Order) *core.Order {
	t.Helper()
	select {
	case order := <-ch:
		return order
	default:
		t.Fatal("expected a triggered order")
		return nil
	}
}

func assertEmpty(t *testing.T, ch <-chan *core.Order) {
	t.Helper()
	select {
	case order := <-ch:
		t.Fatalf("unexpected trigger for order %s", order.ID)
	default:
	}
}

func TestScheduler_StopSellTriggersOnceOnCross(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}

	for _, price := range []int64{95, 92} {
		s.onPrice("SOL/USDC", decimal.NewFromInt(price))
		assertEmpty(t, s.Triggered())
	}

	s.onPrice("SOL/USDC", decimal.NewFromInt(89))
	out := drainOne(t, s.Triggered())
	if out.Type != core.OrderTypeMarket {
		t.Errorf("triggered type = %s, want MARKET", out.Type)
	}

	// Further crossings must not fire again.
	s.onPrice("SOL/USDC", decimal.NewFromInt(85))
	assertEmpty(t, s.Triggered())
}

func TestScheduler_ConcurrentUpdatesFireExactlyOnce(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.onPrice("SOL/USDC", decimal.NewFromInt(80))
		}()
	}
	wg.Wait()

	drainOne(t, s.Triggered())
	assertEmpty(t, s.Triggered())
}

func TestScheduler_CancelPreventsTrigger(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel("o1"); err != nil {
		t.Fatal(err)
	}

	s.onPrice("SOL/USDC", decimal.NewFromInt(80))
	assertEmpty(t, s.Triggered())

	pending := s.Pending()
	if pending[0].Status != core.PendingCancelled {
		t.Errorf("status = %s, want CANCELLED", pending[0].Status)
	}
}

func TestScheduler_CancelAfterTriggerIsNoop(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}
	s.onPrice("SOL/USDC", decimal.NewFromInt(80))
	drainOne(t, s.Triggered())

	if err := s.Cancel("o1"); err != nil {
		t.Errorf("late cancel must be a no-op, got %v", err)
	}
	if s.Pending()[0].Status != core.PendingTriggered {
		t.Error("late cancel overwrote the Triggered status")
	}
}

func TestScheduler_CancelUnknownOrder(t *testing.T) {
	s := newTestScheduler(pricecache.New())
	if err := s.Cancel("missing"); !errors.Is(err, apperrors.ErrOrderNotFound) {
		t.Errorf("expected OrderNotFound, got %v", err)
	}
}

func TestScheduler_EnqueueRejectsNonConditional(t *testing.T) {
	s := newTestScheduler(pricecache.New())

	order := stopSell("o1", 5, 90)
	order.Type = core.OrderTypeMarket
	if _, err := s.Enqueue(order); err == nil {
		t.Error("market order must not be enqueueable")
	}
}

func TestScheduler_EnqueueRejectsDuplicate(t *testing.T) {
	s := newTestScheduler(pricecache.New())

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue(stopSell("o1", 5, 90)); !errors.Is(err, apperrors.ErrDuplicateOrder) {
		t.Errorf("expected DuplicateOrder, got %v", err)
	}
}

func TestScheduler_EnqueueTriggersImmediatelyWhenConditionHolds(t *testing.T) {
	cache := pricecache.New()
	cache.Update("SOL/USDC", decimal.NewFromInt(80))
	s := newTestScheduler(cache)

	po, err := s.Enqueue(stopSell("o1", 5, 90))
	if err != nil {
		t.Fatal(err)
	}
	if po.Status != core.PendingTriggered {
		t.Errorf("status = %s, want TRIGGERED at enqueue", po.Status)
	}
	drainOne(t, s.Triggered())
}

func TestScheduler_StopBuyTriggersOnRise(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	order := stopSell("o1", 5, 110)
	order.Side = core.SideBuy
	if _, err := s.Enqueue(order); err != nil {
		t.Fatal(err)
	}

	s.onPrice("SOL/USDC", decimal.NewFromInt(105))
	assertEmpty(t, s.Triggered())

	s.onPrice("SOL/USDC", decimal.NewFromInt(110))
	drainOne(t, s.Triggered())
}

func TestScheduler_TakeProfitSellTriggersOnRise(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	order := &core.Order{
		ID:              "o1",
		Pair:            "SOL/USDC",
		Side:            core.SideSell,
		Type:            core.OrderTypeTakeProfit,
		Size:            decimal.NewFromInt(5),
		TakeProfitPrice: decimal.NewNullDecimal(decimal.NewFromInt(120)),
		CreatedAt:       time.Now(),
	}
	if _, err := s.Enqueue(order); err != nil {
		t.Fatal(err)
	}

	s.onPrice("SOL/USDC", decimal.NewFromInt(119))
	assertEmpty(t, s.Triggered())

	s.onPrice("SOL/USDC", decimal.NewFromInt(121))
	out := drainOne(t, s.Triggered())
	if out.Type != core.OrderTypeMarket {
		t.Errorf("triggered type = %s, want MARKET", out.Type)
	}
}

func TestScheduler_StopLimitConvertsToLimit(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	order := stopSell("o1", 5, 90)
	order.Type = core.OrderTypeStopLimit
	order.LimitPrice = decimal.NewNullDecimal(decimal.NewFromInt(88))
	if _, err := s.Enqueue(order); err != nil {
		t.Fatal(err)
	}

	s.onPrice("SOL/USDC", decimal.NewFromInt(89))
	out := drainOne(t, s.Triggered())
	if out.Type != core.OrderTypeLimit {
		t.Errorf("triggered type = %s, want LIMIT", out.Type)
	}
	if !out.LimitPrice.Valid || !out.LimitPrice.Decimal.Equal(decimal.NewFromInt(88)) {
		t.Errorf("limit price = %v, want 88", out.LimitPrice)
	}
	if out.StopPrice.Valid {
		t.Error("stop price must be cleared on the executable order")
	}
}

func TestScheduler_SweepExpiresOldOrders(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}

	s.SetClock(func() time.Time { return base.Add(25 * time.Hour) })
	s.sweep()

	if s.Pending()[0].Status != core.PendingExpired {
		t.Errorf("status = %s, want EXPIRED", s.Pending()[0].Status)
	}
	assertEmpty(t, s.Triggered())
}

func TestScheduler_FullTriggerChannelKeepsOrderWaiting(t *testing.T) {
	cache := pricecache.New()
	cfg := testSchedConfig()
	cfg.TriggerBuffer = 1
	updates := make(chan feed.PriceUpdate)
	s := New(cfg, cache, updates, nil, mock.NewNopLogger())

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue(stopSell("o2", 5, 90)); err != nil {
		t.Fatal(err)
	}

	// Both cross; the 1-slot channel only takes one emit. The other must
	// stay Waiting rather than being marked Triggered without ever running.
	s.onPrice("SOL/USDC", decimal.NewFromInt(80))

	triggered, waiting := 0, 0
	for _, po := range s.Pending() {
		switch po.Status {
		case core.PendingTriggered:
			triggered++
		case core.PendingWaiting:
			waiting++
		}
	}
	if triggered != 1 || waiting != 1 {
		t.Fatalf("triggered = %d, waiting = %d, want 1 and 1", triggered, waiting)
	}

	// Once the consumer drains the channel, the stranded order re-fires.
	drainOne(t, s.Triggered())
	s.onPrice("SOL/USDC", decimal.NewFromInt(80))
	drainOne(t, s.Triggered())
	assertEmpty(t, s.Triggered())

	for _, po := range s.Pending() {
		if po.Status != core.PendingTriggered {
			t.Errorf("order %s status = %s, want TRIGGERED", po.ID, po.Status)
		}
	}
}

func TestScheduler_SweepTriggersFromCache(t *testing.T) {
	cache := pricecache.New()
	s := newTestScheduler(cache)

	if _, err := s.Enqueue(stopSell("o1", 5, 90)); err != nil {
		t.Fatal(err)
	}

	// The crossing price lands in the cache without an update event; the
	// sweep must still catch it.
	cache.Update("SOL/USDC", decimal.NewFromInt(85))
	s.sweep()
	drainOne(t, s.Triggered())
}
