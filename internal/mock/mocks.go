// Package mock provides in-memory fakes used across unit tests.
package mock

import (
	"context"
	"sync"

	"dex_trader/internal/core"

	"github.com/shopspring/decimal"
)

// NopLogger discards all log output.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (l *NopLogger) Debug(string, ...interface{})                   {}
func (l *NopLogger) Info(string, ...interface{})                    {}
func (l *NopLogger) Warn(string, ...interface{})                    {}
func (l *NopLogger) Error(string, ...interface{})                   {}
func (l *NopLogger) Fatal(string, ...interface{})                   {}
func (l *NopLogger) WithField(string, interface{}) core.ILogger     { return l }
func (l *NopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

// MockExecutor implements core.IExecutionEngine, recording submitted orders
// and returning a scripted result.
type MockExecutor struct {
	mu       sync.Mutex
	Orders   []*core.Order
	Result   func(order *core.Order) (*core.ExecutionResult, error)
	Done     chan string // receives the order ID after each Submit, if set
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

func (m *MockExecutor) Submit(_ context.Context, order *core.Order) (*core.ExecutionResult, error) {
	m.mu.Lock()
	m.Orders = append(m.Orders, order)
	fn := m.Result
	m.mu.Unlock()

	defer func() {
		if m.Done != nil {
			m.Done <- order.ID
		}
	}()

	if fn != nil {
		return fn(order)
	}
	return &core.ExecutionResult{
		OrderID:  order.ID,
		Fills:    []*core.Fill{{OrderID: order.ID, Pair: order.Pair, Side: order.Side, FilledSize: order.Size, AvgPrice: decimal.NewFromInt(1)}},
		Filled:   order.Size,
		Unfilled: decimal.Zero,
	}, nil
}

func (m *MockExecutor) Submitted() []*core.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Order, len(m.Orders))
	copy(out, m.Orders)
	return out
}

// MockRiskGate approves everything unless Err is set.
type MockRiskGate struct {
	Err error
}

func (m *MockRiskGate) Evaluate(*core.Order, decimal.Decimal, *core.PortfolioView) error {
	return m.Err
}

// MockWalletProvider cycles a fixed pool.
type MockWalletProvider struct {
	mu      sync.Mutex
	Pool    []core.Wallet
	next    int
	Balance decimal.Decimal
	Err     error
}

func (m *MockWalletProvider) NextWallet() core.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.Pool[m.next]
	m.next = (m.next + 1) % len(m.Pool)
	return w
}

func (m *MockWalletProvider) Wallets() []core.Wallet { return m.Pool }

func (m *MockWalletProvider) CashBalance(context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balance, m.Err
}
