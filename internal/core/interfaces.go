// Package core defines the domain types and capability interfaces of the
// trading engine. Every other package depends inward on core, never sideways.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IDexClient is the venue submission capability, implemented once per DEX.
// The engine treats all venues uniformly through this interface; routing
// policy and wire encoding live outside this module.
type IDexClient interface {
	Name() string
	SubmitTrade(ctx context.Context, req *TradeRequest) (*Fill, error)
	GetPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	GetBalance(ctx context.Context, token string) (decimal.Decimal, error)
}

// IPriceCache is the shared last-value price map. Single writer (the feed
// task), any number of concurrent readers.
type IPriceCache interface {
	Update(pair string, price decimal.Decimal)
	Read(pair string) (PriceSnapshot, bool)
	Pairs() []string
}

// IRiskGate evaluates a proposed order against the portfolio and risk
// configuration. Pure: no side effects, no I/O, never caches approvals.
type IRiskGate interface {
	Evaluate(order *Order, refPrice decimal.Decimal, view *PortfolioView) error
}

// IExecutionEngine drives an accepted order through chunked venue submission.
type IExecutionEngine interface {
	Submit(ctx context.Context, order *Order) (*ExecutionResult, error)
}

// IOrderScheduler owns the pending conditional order set. External components
// only enqueue or request cancellation; they never touch the set directly.
type IOrderScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	Enqueue(order *Order) (*PendingOrder, error)
	Cancel(id string) error
	Pending() []PendingOrder
	Triggered() <-chan *Order
}

// ILedger is the single source of truth for cash, positions and realized PnL.
// All mutation is serialized through ApplyFill.
type ILedger interface {
	ApplyFill(fill *Fill) error
	Valuation(cache IPriceCache) Equity
	View(cache IPriceCache) *PortfolioView
	Positions() []Position
	Cash() decimal.Decimal
}

// IWalletProvider supplies the rotation pool of signing identities and the
// observed on-chain cash balance used by reconciliation. Keys stay outside.
type IWalletProvider interface {
	NextWallet() Wallet
	Wallets() []Wallet
	CashBalance(ctx context.Context) (decimal.Decimal, error)
}

// IFillStore persists the append-only fill history.
type IFillStore interface {
	SaveFill(ctx context.Context, fill *Fill) error
	LoadFills(ctx context.Context) ([]*Fill, error)
	Close() error
}

// IHealthMonitor aggregates component health checks.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger is the structured logging interface backed by zap.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
