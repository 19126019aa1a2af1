package risk

import (
	"errors"
	"testing"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	apperrors "dex_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		TradingEnabled:     true,
		MaxPositionSizePct: 0.20,
		MaxPositionRiskPct: 0.02,
		StopDistancePct:    0.05,
		DailyLossLimitPct:  0.15,
		MaxDrawdownPct:     0.25,
		MaxLeverage:        1.0,
	}
}

func flatView(equity int64) *core.PortfolioView {
	eq := decimal.NewFromInt(equity)
	return &core.PortfolioView{
		Cash:             eq,
		Positions:        map[string]core.Position{},
		Equity:           eq,
		GrossExposure:    decimal.Zero,
		HighWaterMark:    eq,
		DailyRealizedPnL: decimal.Zero,
		TotalRealizedPnL: decimal.Zero,
	}
}

func buyOrder(size float64) *core.Order {
	return &core.Order{
		ID:   "o1",
		Pair: "SOL/USDC",
		Side: core.SideBuy,
		Type: core.OrderTypeMarket,
		Size: decimal.NewFromFloat(size),
	}
}

func rejectionRule(t *testing.T, err error) string {
	t.Helper()
	var rejection *apperrors.RiskRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RiskRejection, got %v", err)
	}
	return rejection.Rule
}

func TestGate_AcceptsSmallOrder(t *testing.T) {
	g := NewGate(testRiskConfig())
	// 10 @ 100 = 1000 notional on 10000 equity: 10%, under every limit.
	if err := g.Evaluate(buyOrder(10), decimal.NewFromInt(100), flatView(10000)); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
}

func TestGate_TradingDisabledShortCircuits(t *testing.T) {
	cfg := testRiskConfig()
	cfg.TradingEnabled = false
	g := NewGate(cfg)

	// Order that would also violate size limits; the disabled rule must win.
	err := g.Evaluate(buyOrder(1000), decimal.NewFromInt(100), flatView(10000))
	if rule := rejectionRule(t, err); rule != RuleTradingDisabled {
		t.Errorf("rule = %s, want %s", rule, RuleTradingDisabled)
	}
}

func TestGate_MaxPositionSize(t *testing.T) {
	g := NewGate(testRiskConfig())

	// 30 @ 100 = 3000 projected notional > 20% of 10000.
	err := g.Evaluate(buyOrder(30), decimal.NewFromInt(100), flatView(10000))
	if rule := rejectionRule(t, err); rule != RuleMaxPositionSize {
		t.Errorf("rule = %s, want %s", rule, RuleMaxPositionSize)
	}
}

func TestGate_MaxPositionSizeCountsExistingPosition(t *testing.T) {
	g := NewGate(testRiskConfig())

	view := flatView(10000)
	view.Positions["SOL/USDC"] = core.Position{
		Symbol: "SOL/USDC",
		Size:   decimal.NewFromInt(15),
	}

	// 15 held + 10 more @ 100 = 2500 > 2000 limit.
	err := g.Evaluate(buyOrder(10), decimal.NewFromInt(100), view)
	if rule := rejectionRule(t, err); rule != RuleMaxPositionSize {
		t.Errorf("rule = %s, want %s", rule, RuleMaxPositionSize)
	}
}

func TestGate_SellReducesExposure(t *testing.T) {
	g := NewGate(testRiskConfig())

	view := flatView(10000)
	view.Positions["SOL/USDC"] = core.Position{
		Symbol: "SOL/USDC",
		Size:   decimal.NewFromInt(15),
	}

	sell := buyOrder(10)
	sell.Side = core.SideSell
	if err := g.Evaluate(sell, decimal.NewFromInt(100), view); err != nil {
		t.Fatalf("sell reducing exposure must pass, got %v", err)
	}
}

func TestGate_MaxPositionRiskUsesOrderStop(t *testing.T) {
	g := NewGate(testRiskConfig())

	// 15 @ 100 = 1500 notional, under the 2000 size limit. Stop at 80 means
	// a 20% distance: projected loss 300 > 2% of 10000 = 200.
	order := buyOrder(15)
	order.StopPrice = decimal.NewNullDecimal(decimal.NewFromInt(80))

	err := g.Evaluate(order, decimal.NewFromInt(100), flatView(10000))
	if rule := rejectionRule(t, err); rule != RuleMaxPositionRisk {
		t.Errorf("rule = %s, want %s", rule, RuleMaxPositionRisk)
	}
}

func TestGate_DailyLossLimit(t *testing.T) {
	g := NewGate(testRiskConfig())

	view := flatView(10000)
	view.DailyRealizedPnL = decimal.NewFromInt(-1600) // > 15% of 10000

	err := g.Evaluate(buyOrder(1), decimal.NewFromInt(100), view)
	if rule := rejectionRule(t, err); rule != RuleDailyLossLimit {
		t.Errorf("rule = %s, want %s", rule, RuleDailyLossLimit)
	}
}

func TestGate_MaxDrawdown(t *testing.T) {
	g := NewGate(testRiskConfig())

	view := flatView(7000)
	view.HighWaterMark = decimal.NewFromInt(10000) // 30% drawdown

	err := g.Evaluate(buyOrder(1), decimal.NewFromInt(100), view)
	if rule := rejectionRule(t, err); rule != RuleMaxDrawdown {
		t.Errorf("rule = %s, want %s", rule, RuleMaxDrawdown)
	}
}

func TestGate_MaxLeverage(t *testing.T) {
	g := NewGate(testRiskConfig())

	view := flatView(10000)
	view.GrossExposure = decimal.NewFromInt(9000)

	// 9000 + 15*100 = 10500 gross on 10000 equity: leverage 1.05 > 1.0.
	// Size 15 keeps the projected position notional under the size limit.
	err := g.Evaluate(buyOrder(15), decimal.NewFromInt(100), view)
	if rule := rejectionRule(t, err); rule != RuleMaxLeverage {
		t.Errorf("rule = %s, want %s", rule, RuleMaxLeverage)
	}
}

func TestGate_NonPositiveEquityRejected(t *testing.T) {
	g := NewGate(testRiskConfig())

	view := flatView(0)
	view.HighWaterMark = decimal.Zero

	err := g.Evaluate(buyOrder(0), decimal.NewFromInt(100), view)
	if rule := rejectionRule(t, err); rule != RuleMaxLeverage {
		t.Errorf("rule = %s, want %s", rule, RuleMaxLeverage)
	}
}

func TestGate_EvaluateIsRepeatable(t *testing.T) {
	g := NewGate(testRiskConfig())
	view := flatView(10000)
	order := buyOrder(10)
	price := decimal.NewFromInt(100)

	for i := 0; i < 3; i++ {
		if err := g.Evaluate(order, price, view); err != nil {
			t.Fatalf("evaluation %d changed outcome: %v", i, err)
		}
	}
}
