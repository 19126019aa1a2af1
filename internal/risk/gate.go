// Package risk implements the pre-trade risk gate.
package risk

import (
	"dex_trader/internal/config"
	"dex_trader/internal/core"
	apperrors "dex_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// Rule names carried in rejections.
const (
	RuleTradingDisabled = "trading_disabled"
	RuleMaxPositionSize = "max_position_size"
	RuleMaxPositionRisk = "max_position_risk"
	RuleDailyLossLimit  = "daily_loss_limit"
	RuleMaxDrawdown     = "max_drawdown"
	RuleMaxLeverage     = "max_leverage"
)

// Gate evaluates a proposed order against the portfolio view and configured
// limits. Evaluate is a pure function: no side effects, no I/O, and no
// caching of approvals; every order, including each re-triggered
// conditional, is evaluated afresh.
type Gate struct {
	tradingEnabled     bool
	maxPositionSizePct decimal.Decimal
	maxPositionRiskPct decimal.Decimal
	stopDistancePct    decimal.Decimal
	dailyLossLimitPct  decimal.Decimal
	maxDrawdownPct     decimal.Decimal
	maxLeverage        decimal.Decimal
}

// NewGate builds a gate from configuration.
func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{
		tradingEnabled:     cfg.TradingEnabled,
		maxPositionSizePct: decimal.NewFromFloat(cfg.MaxPositionSizePct),
		maxPositionRiskPct: decimal.NewFromFloat(cfg.MaxPositionRiskPct),
		stopDistancePct:    decimal.NewFromFloat(cfg.StopDistancePct),
		dailyLossLimitPct:  decimal.NewFromFloat(cfg.DailyLossLimitPct),
		maxDrawdownPct:     decimal.NewFromFloat(cfg.MaxDrawdownPct),
		maxLeverage:        decimal.NewFromFloat(cfg.MaxLeverage),
	}
}

// Evaluate accepts (nil) or rejects (*apperrors.RiskRejection) the order.
// Checks run in a fixed order and short-circuit on the first failure, so the
// rejection always names the first violated rule.
func (g *Gate) Evaluate(order *core.Order, refPrice decimal.Decimal, view *core.PortfolioView) error {
	if !g.tradingEnabled {
		return &apperrors.RiskRejection{
			Rule:   RuleTradingDisabled,
			Detail: "trading is globally disabled",
		}
	}

	orderNotional := order.Size.Mul(refPrice)

	if err := g.checkPositionSize(order, refPrice, orderNotional, view); err != nil {
		return err
	}
	if err := g.checkPositionRisk(order, refPrice, orderNotional, view); err != nil {
		return err
	}
	if err := g.checkDailyLoss(view); err != nil {
		return err
	}
	if err := g.checkDrawdown(view); err != nil {
		return err
	}
	if err := g.checkLeverage(order, orderNotional, view); err != nil {
		return err
	}
	return nil
}

// checkPositionSize bounds the projected position notional after the order
// fills, as a fraction of equity. Sells reduce exposure and pass trivially.
func (g *Gate) checkPositionSize(order *core.Order, refPrice, orderNotional decimal.Decimal, view *core.PortfolioView) error {
	pos := view.PositionFor(order.Pair)

	projected := pos.Size
	if order.Side.IsBuy() {
		projected = projected.Add(order.Size)
	} else {
		projected = projected.Sub(order.Size)
		if projected.IsNegative() {
			projected = decimal.Zero
		}
	}

	projectedNotional := projected.Mul(refPrice)
	limit := view.Equity.Mul(g.maxPositionSizePct)
	if projectedNotional.GreaterThan(limit) {
		return &apperrors.RiskRejection{
			Rule:   RuleMaxPositionSize,
			Detail: "projected position notional for " + order.Pair + " exceeds equity fraction",
			Limit:  limit,
			Actual: projectedNotional,
		}
	}
	return nil
}

// checkPositionRisk bounds the loss the order could realize at its stop
// distance. Orders without a stop use the configured default distance.
func (g *Gate) checkPositionRisk(order *core.Order, refPrice, orderNotional decimal.Decimal, view *core.PortfolioView) error {
	stopDistance := g.stopDistancePct
	if order.StopPrice.Valid && refPrice.IsPositive() {
		dist := refPrice.Sub(order.StopPrice.Decimal).Abs().Div(refPrice)
		stopDistance = dist
	}

	projectedLoss := orderNotional.Mul(stopDistance)
	limit := view.Equity.Mul(g.maxPositionRiskPct)
	if projectedLoss.GreaterThan(limit) {
		return &apperrors.RiskRejection{
			Rule:   RuleMaxPositionRisk,
			Detail: "projected loss at stop distance exceeds equity fraction",
			Limit:  limit,
			Actual: projectedLoss,
		}
	}
	return nil
}

// checkDailyLoss bounds today's cumulative realized loss against equity.
func (g *Gate) checkDailyLoss(view *core.PortfolioView) error {
	if !view.DailyRealizedPnL.IsNegative() {
		return nil
	}

	loss := view.DailyRealizedPnL.Neg()
	limit := view.Equity.Mul(g.dailyLossLimitPct)
	if loss.GreaterThan(limit) {
		return &apperrors.RiskRejection{
			Rule:   RuleDailyLossLimit,
			Detail: "cumulative realized loss today exceeds the daily limit",
			Limit:  limit,
			Actual: loss,
		}
	}
	return nil
}

// checkDrawdown bounds the drawdown from the equity high-water mark.
func (g *Gate) checkDrawdown(view *core.PortfolioView) error {
	if !view.HighWaterMark.IsPositive() {
		return nil
	}

	drawdown := view.HighWaterMark.Sub(view.Equity).Div(view.HighWaterMark)
	if drawdown.GreaterThan(g.maxDrawdownPct) {
		return &apperrors.RiskRejection{
			Rule:   RuleMaxDrawdown,
			Detail: "drawdown from equity high-water mark exceeds the limit",
			Limit:  g.maxDrawdownPct,
			Actual: drawdown,
		}
	}
	return nil
}

// checkLeverage bounds the gross exposure the order would imply.
func (g *Gate) checkLeverage(order *core.Order, orderNotional decimal.Decimal, view *core.PortfolioView) error {
	if !view.Equity.IsPositive() {
		return &apperrors.RiskRejection{
			Rule:   RuleMaxLeverage,
			Detail: "equity is not positive",
		}
	}

	gross := view.GrossExposure
	if order.Side.IsBuy() {
		gross = gross.Add(orderNotional)
	}

	leverage := gross.Div(view.Equity)
	if leverage.GreaterThan(g.maxLeverage) {
		return &apperrors.RiskRejection{
			Rule:   RuleMaxLeverage,
			Detail: "implied leverage exceeds the limit",
			Limit:  g.maxLeverage,
			Actual: leverage,
		}
	}
	return nil
}
