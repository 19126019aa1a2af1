package engine_test

import (
	"context"
	"testing"
	"time"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/internal/dexmock"
	"dex_trader/internal/engine"
	"dex_trader/internal/execution"
	"dex_trader/internal/feed"
	"dex_trader/internal/ledger"
	"dex_trader/internal/mock"
	"dex_trader/internal/pricecache"
	"dex_trader/internal/risk"
	"dex_trader/internal/scheduler"
	"dex_trader/internal/store"
	"dex_trader/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// session wires a full paper-trading stack: feed -> cache -> engine ->
// execution -> ledger, with a simulated venue filling at the cached price.
type session struct {
	cfg    *config.Config
	feed   *feed.Feed
	cache  *pricecache.Cache
	book   *ledger.Ledger
	venue  *dexmock.Client
	eng    *engine.Engine
	sched  *scheduler.Scheduler
	cancel context.CancelFunc
}

func startSession(t *testing.T) *session {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Execution.JitterMinMs = 0
	cfg.Execution.JitterMaxMs = 0
	cfg.Execution.RateLimit = 0
	cfg.System.StartingCash = 10000

	logger := mock.NewNopLogger()
	cache := pricecache.New()
	priceFeed := feed.New(cfg.Feed, cache, logger)

	venue := dexmock.NewClient("jupiter", cache, decimal.Zero)
	book := ledger.New(decimal.NewFromFloat(cfg.System.StartingCash), store.NewMemoryStore(), logger)

	wallets, err := wallet.NewProvider(cfg.Wallets.Addresses)
	require.NoError(t, err)

	exec := execution.NewEngine(cfg.Execution, []core.IDexClient{venue}, cache, book, wallets, nil, logger)
	sched := scheduler.New(cfg.Scheduler, cache, priceFeed.Subscribe(), nil, logger)

	eng := engine.New(cfg, cache, risk.NewGate(cfg.Risk), exec, sched, book, nil, logger)
	exec.SetHaltCheck(eng.IsHalted)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sched.Start(ctx))
	go func() { _ = eng.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = sched.Stop()
	})

	return &session{
		cfg:    cfg,
		feed:   priceFeed,
		cache:  cache,
		book:   book,
		venue:  venue,
		eng:    eng,
		sched:  sched,
		cancel: cancel,
	}
}

func TestPaperSession_MarketBuyFlow(t *testing.T) {
	s := startSession(t)

	s.feed.Inject("SOL/USDC", decimal.NewFromInt(100))

	sig := core.Signal{
		Pair:       "SOL/USDC",
		Side:       core.SideBuy,
		Size:       decimal.NewFromInt(10),
		Type:       core.OrderTypeMarket,
		Confidence: 0.9,
		Strategy:   "session-test",
		Timestamp:  time.Now(),
	}
	require.NoError(t, s.eng.HandleSignal(sig))

	require.Eventually(t, func() bool {
		return len(s.book.Positions()) == 1
	}, 5*time.Second, 10*time.Millisecond, "buy never reached the ledger")

	// 10 units at 100, zero venue fee, split into 5+5.
	assert.Equal(t, "9000", s.book.Cash().String())
	positions := s.book.Positions()
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, "SOL/USDC", pos.Symbol)
	assert.Equal(t, "10", pos.Size.String())
	assert.Equal(t, "100", pos.AverageEntryPrice.String())
	assert.Len(t, s.venue.Submissions(), 2)
}

func TestPaperSession_StopLossRoundTrip(t *testing.T) {
	s := startSession(t)

	s.feed.Inject("SOL/USDC", decimal.NewFromInt(100))

	buy := core.Signal{
		Pair:       "SOL/USDC",
		Side:       core.SideBuy,
		Size:       decimal.NewFromInt(10),
		Type:       core.OrderTypeMarket,
		Confidence: 0.9,
		Strategy:   "session-test",
		Timestamp:  time.Now(),
	}
	require.NoError(t, s.eng.HandleSignal(buy))
	require.Eventually(t, func() bool {
		return len(s.book.Positions()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	stop := core.Signal{
		Pair:       "SOL/USDC",
		Side:       core.SideSell,
		Size:       decimal.NewFromInt(10),
		Type:       core.OrderTypeStop,
		StopPrice:  decimal.NewNullDecimal(decimal.NewFromInt(90)),
		Confidence: 0.9,
		Strategy:   "session-test",
		Timestamp:  time.Now(),
	}
	require.NoError(t, s.eng.HandleSignal(stop))

	require.Eventually(t, func() bool {
		pending := s.sched.Pending()
		return len(pending) == 1 && pending[0].Status == core.PendingWaiting
	}, 5*time.Second, 10*time.Millisecond, "stop order never enqueued")

	// Above the trigger, nothing fires.
	s.feed.Inject("SOL/USDC", decimal.NewFromInt(95))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.book.Positions(), 1)

	// Crossing the stop liquidates the position.
	s.feed.Inject("SOL/USDC", decimal.NewFromInt(89))
	require.Eventually(t, func() bool {
		return len(s.book.Positions()) == 0
	}, 5*time.Second, 10*time.Millisecond, "stop never liquidated the position")

	// Bought 10@100, sold 10@89.
	assert.Equal(t, "9890", s.book.Cash().String())
	assert.Equal(t, "-110", s.book.TotalRealizedPnL().String())

	snap := s.eng.Snapshot()
	assert.False(t, snap.Halted)
	require.Len(t, snap.PendingOrders, 1)
	assert.Equal(t, core.PendingTriggered, snap.PendingOrders[0].Status)

	// Two buy chunks and two sell chunks were booked.
	report := s.book.Report()
	assert.Equal(t, 4, report.FillCount)
}

func TestPaperSession_RiskGateBlocksOversizedOrder(t *testing.T) {
	s := startSession(t)

	s.feed.Inject("SOL/USDC", decimal.NewFromInt(100))

	// 50 units at 100 is half the account, far over the position size cap.
	sig := core.Signal{
		Pair:       "SOL/USDC",
		Side:       core.SideBuy,
		Size:       decimal.NewFromInt(50),
		Type:       core.OrderTypeMarket,
		Confidence: 0.9,
		Strategy:   "session-test",
		Timestamp:  time.Now(),
	}
	require.NoError(t, s.eng.HandleSignal(sig))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, s.book.Positions())
	assert.Empty(t, s.venue.Submissions())
}
