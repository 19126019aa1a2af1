// Package wallet supplies the rotation pool of signing identities.
package wallet

import (
	"context"
	"fmt"
	"sync"

	"dex_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Provider hands out wallets round-robin so consecutive submissions do not
// originate from the same address. Key material never enters this process;
// the address alone routes a submission to the external signer.
type Provider struct {
	mu      sync.Mutex
	wallets []core.Wallet
	next    int

	// balance reports the aggregate on-chain cash across the pool. Used by
	// reconciliation; nil when no balance source is wired.
	balance func(ctx context.Context) (decimal.Decimal, error)
}

// NewProvider builds a provider from configured addresses.
func NewProvider(addresses []string) (*Provider, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("wallet pool is empty")
	}

	wallets := make([]core.Wallet, len(addresses))
	for i, addr := range addresses {
		wallets[i] = core.Wallet{
			Address: addr,
			Label:   fmt.Sprintf("wallet-%d", i),
		}
	}
	return &Provider{wallets: wallets}, nil
}

// SetBalanceSource wires the on-chain balance lookup.
func (p *Provider) SetBalanceSource(fn func(ctx context.Context) (decimal.Decimal, error)) {
	p.mu.Lock()
	p.balance = fn
	p.mu.Unlock()
}

// NextWallet returns the next wallet in rotation.
func (p *Provider) NextWallet() core.Wallet {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.wallets[p.next]
	p.next = (p.next + 1) % len(p.wallets)
	return w
}

// Wallets returns the pool in configured order.
func (p *Provider) Wallets() []core.Wallet {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]core.Wallet, len(p.wallets))
	copy(out, p.wallets)
	return out
}

// CashBalance returns the observed on-chain cash across the pool.
func (p *Provider) CashBalance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	fn := p.balance
	p.mu.Unlock()

	if fn == nil {
		return decimal.Zero, fmt.Errorf("no balance source configured")
	}
	return fn(ctx)
}
