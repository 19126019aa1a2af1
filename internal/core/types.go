package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// IsBuy returns true if the side is a buy
func (s OrderSide) IsBuy() bool { return s == SideBuy }

// IsSell returns true if the side is a sell
func (s OrderSide) IsSell() bool { return s == SideSell }

// OrderType identifies how an order is executed
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

// IsConditional reports whether the order type waits on a price trigger
// instead of being submitted immediately.
func (t OrderType) IsConditional() bool {
	switch t {
	case OrderTypeStop, OrderTypeStopLimit, OrderTypeTakeProfit:
		return true
	}
	return false
}

// Signal is a strategy-emitted trading intent, not yet risk-checked.
type Signal struct {
	Pair            string
	Side            OrderSide
	Size            decimal.Decimal
	Type            OrderType
	LimitPrice      decimal.NullDecimal
	StopPrice       decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal
	Confidence      float64
	Strategy        string
	Timestamp       time.Time
}

// Order is a risk-checkable, executable order. Orders are immutable once
// constructed; a re-submission derives a new Order instead of mutating one.
type Order struct {
	ID              string
	Pair            string
	Side            OrderSide
	Type            OrderType
	Size            decimal.Decimal
	LimitPrice      decimal.NullDecimal
	StopPrice       decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal
	MaxSlippagePct  decimal.Decimal
	MaxFee          decimal.Decimal
	Strategy        string
	CreatedAt       time.Time
}

// OrderFromSignal converts a strategy signal 1:1 into an Order.
func OrderFromSignal(sig Signal, maxSlippagePct, maxFee decimal.Decimal) *Order {
	return &Order{
		ID:              uuid.NewString(),
		Pair:            sig.Pair,
		Side:            sig.Side,
		Type:            sig.Type,
		Size:            sig.Size,
		LimitPrice:      sig.LimitPrice,
		StopPrice:       sig.StopPrice,
		TakeProfitPrice: sig.TakeProfitPrice,
		MaxSlippagePct:  maxSlippagePct,
		MaxFee:          maxFee,
		Strategy:        sig.Strategy,
		CreatedAt:       time.Now().UTC(),
	}
}

// WithSize derives a new Order with a different size, keeping everything else.
// Used when re-queueing the unfilled remainder of a partial fill.
func (o *Order) WithSize(size decimal.Decimal) *Order {
	derived := *o
	derived.ID = uuid.NewString()
	derived.Size = size
	derived.CreatedAt = time.Now().UTC()
	return &derived
}

// PendingStatus is the lifecycle state of a conditional order.
type PendingStatus string

const (
	PendingWaiting   PendingStatus = "WAITING"
	PendingTriggered PendingStatus = "TRIGGERED"
	PendingCancelled PendingStatus = "CANCELLED"
	PendingExpired   PendingStatus = "EXPIRED"
)

// PendingOrder wraps a conditional Order while it waits for its trigger.
// The scheduler owns the record; it stays in the scheduler for audit after
// the terminal transition.
type PendingOrder struct {
	ID            string
	Order         *Order
	Status        PendingStatus
	CreatedAt     time.Time
	LastCheckedAt time.Time
}

// Fill records one successfully submitted chunk. Immutable, append-only.
type Fill struct {
	OrderID    string
	Pair       string
	Side       OrderSide
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
	FeePaid    decimal.Decimal
	Venue      string
	Timestamp  time.Time
}

// Position is the held inventory for one symbol.
type Position struct {
	Symbol            string
	Size              decimal.Decimal
	AverageEntryPrice decimal.Decimal
	RealizedPnL       decimal.Decimal
}

// PriceSnapshot is a last-known price plus its observation time. Consumers
// must judge staleness via ObservedAt; a snapshot is never silently defaulted.
type PriceSnapshot struct {
	Pair       string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// IsStale reports whether the snapshot is older than maxAge at time now.
func (ps PriceSnapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(ps.ObservedAt) > maxAge
}

// TradeRequest is the venue-agnostic submission payload handed to a DexClient.
type TradeRequest struct {
	Pair            string
	Side            OrderSide
	Type            OrderType
	Size            decimal.Decimal
	LimitPrice      decimal.NullDecimal
	StopPrice       decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal
	MaxSlippagePct  decimal.Decimal
	MaxFee          decimal.Decimal
	Wallet          Wallet
	OrderID         string
}

// Wallet is an opaque signing identity from the wallet provider. Key material
// never enters this module; the address is enough to route a submission.
type Wallet struct {
	Address string
	Label   string
}

// ExecutionResult reports what a submission actually obtained. A partially
// filled order is not a failure: Fills holds what succeeded and Unfilled the
// remainder the caller may re-queue.
type ExecutionResult struct {
	OrderID  string
	Fills    []*Fill
	Filled   decimal.Decimal
	Unfilled decimal.Decimal
}

// Partial reports whether some but not all of the order size was filled.
func (r *ExecutionResult) Partial() bool {
	return len(r.Fills) > 0 && r.Unfilled.IsPositive()
}

// Equity is a point-in-time valuation of the portfolio.
type Equity struct {
	Cash          decimal.Decimal
	MarketValue   decimal.Decimal
	Total         decimal.Decimal
	MissingPrices []string
	ComputedAt    time.Time
}

// PortfolioView is an immutable snapshot of ledger state consumed by the
// risk gate. Building it and evaluating against it is side-effect free.
type PortfolioView struct {
	Cash             decimal.Decimal
	Positions        map[string]Position
	Equity           decimal.Decimal
	GrossExposure    decimal.Decimal
	HighWaterMark    decimal.Decimal
	DailyRealizedPnL decimal.Decimal
	TotalRealizedPnL decimal.Decimal
}

// PositionFor returns the view's position for a symbol, zero-valued if flat.
func (v *PortfolioView) PositionFor(symbol string) Position {
	if p, ok := v.Positions[symbol]; ok {
		return p
	}
	return Position{Symbol: symbol, Size: decimal.Zero, AverageEntryPrice: decimal.Zero, RealizedPnL: decimal.Zero}
}

// EngineSnapshot is the poll surface exposed to the dashboard/CLI.
type EngineSnapshot struct {
	Equity        Equity
	OpenPositions []Position
	PendingOrders []PendingOrder
	Halted        bool
	HaltReason    string
	TakenAt       time.Time
}

// SessionReport summarizes a trading session on shutdown.
type SessionReport struct {
	RealizedPnL decimal.Decimal
	MaxDrawdown decimal.Decimal
	FillCount   int
	WinRate     float64
}

func (r SessionReport) String() string {
	return fmt.Sprintf("realized_pnl=%s max_drawdown=%s fills=%d win_rate=%.2f",
		r.RealizedPnL.String(), r.MaxDrawdown.String(), r.FillCount, r.WinRate)
}
