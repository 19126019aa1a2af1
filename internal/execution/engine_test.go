package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/internal/dexmock"
	"dex_trader/internal/ledger"
	"dex_trader/internal/mock"
	"dex_trader/internal/pricecache"
	apperrors "dex_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

func testExecConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		MaxChunkSize:      5.0,
		SplitThreshold:    5.0,
		JitterMinMs:       0,
		JitterMaxMs:       0,
		MaxRetries:        0,
		RetryBaseDelayMs:  1,
		RetryMaxDelayMs:   2,
		PriceStalenessMs:  10000,
		RotateWallets:     true,
		DefaultMaxSlipPct: 0.01,
		DefaultMaxFee:     0.05,
		RateLimit:         0, // unlimited in tests
		RateBurst:         1,
	}
}

type execHarness struct {
	engine *Engine
	cache  *pricecache.Cache
	ledger *ledger.Ledger
	venues []*dexmock.Client
}

func newHarness(t *testing.T, cfg config.ExecutionConfig, venueNames ...string) *execHarness {
	t.Helper()

	cache := pricecache.New()
	book := ledger.New(decimal.NewFromInt(100000), nil, mock.NewNopLogger())
	wallets := &mock.MockWalletProvider{Pool: []core.Wallet{
		{Address: "w1", Label: "wallet-0"},
		{Address: "w2", Label: "wallet-1"},
	}}

	var clients []*dexmock.Client
	var venues []core.IDexClient
	for _, name := range venueNames {
		c := dexmock.NewClient(name, cache, decimal.Zero)
		clients = append(clients, c)
		venues = append(venues, c)
	}

	e := NewEngine(cfg, venues, cache, book, wallets, nil, mock.NewNopLogger())
	e.SetClock(time.Now, func(context.Context, time.Duration) error { return nil })

	return &execHarness{engine: e, cache: cache, ledger: book, venues: clients}
}

func marketOrder(size float64) *core.Order {
	return &core.Order{
		ID:             "order-1",
		Pair:           "SOL/USDC",
		Side:           core.SideBuy,
		Type:           core.OrderTypeMarket,
		Size:           decimal.NewFromFloat(size),
		MaxSlippagePct: decimal.NewFromFloat(0.01),
		MaxFee:         decimal.NewFromFloat(0.05),
		CreatedAt:      time.Now(),
	}
}

func TestSubmit_RejectsWithoutPrice(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter")

	_, err := h.engine.Submit(context.Background(), marketOrder(1))
	if !errors.Is(err, apperrors.ErrPriceUnavailable) {
		t.Fatalf("expected PriceUnavailable, got %v", err)
	}
	if len(h.venues[0].Submissions()) != 0 {
		t.Error("venue must not be touched without a fresh price")
	}
}

func TestSubmit_RejectsStalePrice(t *testing.T) {
	cfg := testExecConfig()
	h := newHarness(t, cfg, "jupiter")

	past := time.Now().Add(-time.Minute)
	stale := pricecache.NewWithClock(func() time.Time { return past })
	stale.Update("SOL/USDC", decimal.NewFromInt(100))
	h.engine.cache = stale

	_, err := h.engine.Submit(context.Background(), marketOrder(1))
	if !errors.Is(err, apperrors.ErrPriceUnavailable) {
		t.Fatalf("expected PriceUnavailable for stale quote, got %v", err)
	}
}

func TestSubmit_RejectsExcessiveSlippageTolerance(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter")
	h.cache.Update("SOL/USDC", decimal.NewFromInt(100))

	order := marketOrder(1)
	order.MaxSlippagePct = decimal.NewFromFloat(0.5)

	_, err := h.engine.Submit(context.Background(), order)
	if !errors.Is(err, apperrors.ErrLimitsExceeded) {
		t.Fatalf("expected LimitsExceeded, got %v", err)
	}
}

func TestSubmit_FullFillAcrossChunks(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter")
	h.cache.Update("SOL/USDC", decimal.NewFromInt(10))

	result, err := h.engine.Submit(context.Background(), marketOrder(12))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if len(result.Fills) != 3 {
		t.Errorf("fills = %d, want 3 chunks (5+5+2)", len(result.Fills))
	}
	if !result.Filled.Equal(decimal.NewFromInt(12)) {
		t.Errorf("filled = %s, want 12", result.Filled)
	}
	if result.Partial() {
		t.Error("full fill reported as partial")
	}

	// Every fill was booked into the ledger as it happened.
	if !h.ledger.Cash().Equal(decimal.NewFromInt(100000 - 120)) {
		t.Errorf("cash = %s, want 99880", h.ledger.Cash())
	}
}

func TestSubmit_ChunkFailureKeepsEarlierFills(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter")
	h.cache.Update("SOL/USDC", decimal.NewFromInt(10))

	// First chunk succeeds; every later attempt fails.
	h.venues[0].FailAfter(1, nil)

	result, err := h.engine.Submit(context.Background(), marketOrder(15))
	if err != nil {
		t.Fatalf("partial fill must not be an error: %v", err)
	}

	if !result.Partial() {
		t.Fatal("expected a partial fill")
	}
	if len(result.Fills) != 1 {
		t.Errorf("fills = %d, want 1", len(result.Fills))
	}
	if !result.Filled.Equal(decimal.NewFromInt(5)) {
		t.Errorf("filled = %s, want 5", result.Filled)
	}
	if !result.Unfilled.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unfilled = %s, want 10", result.Unfilled)
	}

	// The successful chunk stayed in the ledger.
	if !h.ledger.Cash().Equal(decimal.NewFromInt(100000 - 50)) {
		t.Errorf("cash = %s, want 99950", h.ledger.Cash())
	}
}

func TestSubmit_AllChunksFailed(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter")
	h.cache.Update("SOL/USDC", decimal.NewFromInt(10))

	h.venues[0].FailNext(1000, nil)

	result, err := h.engine.Submit(context.Background(), marketOrder(3))
	if !errors.Is(err, apperrors.ErrDexSubmission) {
		t.Fatalf("expected DexSubmission, got %v", err)
	}
	if result == nil || len(result.Fills) != 0 {
		t.Error("expected empty result alongside the error")
	}
}

func TestSubmit_VenueFallthrough(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter", "raydium")
	h.cache.Update("SOL/USDC", decimal.NewFromInt(10))

	h.venues[0].FailNext(1000, nil)

	result, err := h.engine.Submit(context.Background(), marketOrder(3))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Fills[0].Venue != "raydium" {
		t.Errorf("fill venue = %s, want raydium", result.Fills[0].Venue)
	}
}

func TestSubmit_WalletRotation(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter")
	h.cache.Update("SOL/USDC", decimal.NewFromInt(10))

	if _, err := h.engine.Submit(context.Background(), marketOrder(15)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	subs := h.venues[0].Submissions()
	if len(subs) != 3 {
		t.Fatalf("submissions = %d, want 3", len(subs))
	}
	if subs[0].Wallet.Address == subs[1].Wallet.Address {
		t.Error("consecutive chunks used the same wallet")
	}
}

func TestSubmit_HaltStopsAtChunkBoundary(t *testing.T) {
	h := newHarness(t, testExecConfig(), "jupiter")
	h.cache.Update("SOL/USDC", decimal.NewFromInt(10))

	boundaries := 0
	h.engine.SetHaltCheck(func() bool {
		boundaries++
		return boundaries > 1
	})

	result, err := h.engine.Submit(context.Background(), marketOrder(15))
	if err != nil {
		t.Fatalf("halted partial must not be an error: %v", err)
	}
	if len(result.Fills) != 1 {
		t.Errorf("fills = %d, want 1 (halt after first boundary)", len(result.Fills))
	}
	if !result.Unfilled.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unfilled = %s, want 10", result.Unfilled)
	}
}
