package ledger

import (
	"context"
	"testing"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/internal/mock"
	"dex_trader/internal/store"

	"github.com/shopspring/decimal"
)

func reconcilerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		ReconcileIntervalSeconds: 60,
		ReconcileTolerance:       0.01,
	}
}

func TestReconciler_DriftWithinToleranceIgnored(t *testing.T) {
	l := newTestLedger(1000)
	wallets := &mock.MockWalletProvider{
		Pool:    []core.Wallet{{Address: "w1"}},
		Balance: decimal.NewFromFloat(1000.005),
	}

	r := NewReconciler(l, wallets, nil, reconcilerConfig(), nil, mock.NewNopLogger())
	if err := r.ReconcileOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !l.Cash().Equal(decimal.NewFromInt(1000)) {
		t.Errorf("cash = %s, small drift must not be adopted", l.Cash())
	}
}

func TestReconciler_WalletAuthoritativeBeyondTolerance(t *testing.T) {
	l := newTestLedger(1000)
	wallets := &mock.MockWalletProvider{
		Pool:    []core.Wallet{{Address: "w1"}},
		Balance: decimal.NewFromInt(900),
	}

	r := NewReconciler(l, wallets, nil, reconcilerConfig(), nil, mock.NewNopLogger())
	if err := r.ReconcileOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !l.Cash().Equal(decimal.NewFromInt(900)) {
		t.Errorf("cash = %s, want wallet's 900", l.Cash())
	}
}

func TestReconciler_RebuildsPositionsFromHistory(t *testing.T) {
	fillStore := store.NewMemoryStore()
	l := New(decimal.NewFromInt(10000), fillStore, mock.NewNopLogger())

	if err := l.ApplyFill(fill(core.SideBuy, 10, 100, 0)); err != nil {
		t.Fatal(err)
	}
	if err := l.ApplyFill(fill(core.SideSell, 4, 110, 0)); err != nil {
		t.Fatal(err)
	}

	// Simulate in-memory corruption that reconciliation must repair.
	l.mu.Lock()
	l.positions = map[string]*core.Position{}
	l.mu.Unlock()

	wallets := &mock.MockWalletProvider{
		Pool:    []core.Wallet{{Address: "w1"}},
		Balance: decimal.NewFromInt(5000),
	}
	r := NewReconciler(l, wallets, fillStore, reconcilerConfig(), nil, mock.NewNopLogger())
	if err := r.ReconcileOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	positions := l.Positions()
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	if !positions[0].Size.Equal(decimal.NewFromInt(6)) {
		t.Errorf("size = %s, want 6", positions[0].Size)
	}
	if !positions[0].AverageEntryPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("entry = %s, want 100", positions[0].AverageEntryPrice)
	}
	if !l.Cash().Equal(decimal.NewFromInt(5000)) {
		t.Errorf("cash = %s, want wallet's 5000", l.Cash())
	}
}
