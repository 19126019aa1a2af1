package ledger

import (
	"context"
	"time"

	"dex_trader/internal/alert"
	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/pkg/retry"
	"dex_trader/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Reconciler periodically compares the ledger's cash against the observed
// wallet balance. Beyond the tolerance the wallet is authoritative: cash is
// overwritten and open positions are rebuilt by replaying the fill history.
type Reconciler struct {
	ledger    *Ledger
	wallets   core.IWalletProvider
	store     core.IFillStore
	interval  time.Duration
	tolerance decimal.Decimal
	metrics   *telemetry.MetricsHolder
	alerts    *alert.Manager
	logger    core.ILogger
}

// NewReconciler wires a reconciler for the given ledger.
func NewReconciler(l *Ledger, wallets core.IWalletProvider, store core.IFillStore, cfg config.LedgerConfig, metrics *telemetry.MetricsHolder, logger core.ILogger) *Reconciler {
	return &Reconciler{
		ledger:    l,
		wallets:   wallets,
		store:     store,
		interval:  cfg.ReconcileInterval(),
		tolerance: decimal.NewFromFloat(cfg.ReconcileTolerance),
		metrics:   metrics,
		logger:    logger.WithField("component", "reconciler"),
	}
}

// SetAlerts installs an optional operator notification sink.
func (r *Reconciler) SetAlerts(m *alert.Manager) {
	r.alerts = m
}

// Run loops until the context is cancelled. A zero interval disables the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("Reconciliation disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Warn("Reconciliation pass failed", "error", err)
			}
		}
	}
}

// ReconcileOnce performs a single reconciliation pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	var observed decimal.Decimal
	err := retry.Do(ctx, retry.DefaultPolicy, retry.Always, func() error {
		var err error
		observed, err = r.wallets.CashBalance(ctx)
		return err
	})
	if err != nil {
		return err
	}

	drift := observed.Sub(r.ledger.Cash())
	if r.metrics != nil {
		f, _ := drift.Abs().Float64()
		r.metrics.SetReconcileDrift("pool", f)
	}

	if drift.Abs().LessThanOrEqual(r.tolerance) {
		r.logger.Debug("Ledger in sync with wallet", "drift", drift.String())
		return nil
	}

	r.logger.Warn("Cash drift beyond tolerance, adopting wallet balance",
		"ledger_cash", r.ledger.Cash().String(),
		"wallet_cash", observed.String(),
		"drift", drift.String())
	if r.alerts != nil {
		r.alerts.NotifyDrift(r.ledger.Cash().String(), observed.String())
	}
	r.ledger.overwriteCash(observed)

	if r.store != nil {
		fills, err := r.store.LoadFills(ctx)
		if err != nil {
			return err
		}
		if err := r.ledger.rebuildPositions(fills); err != nil {
			return err
		}
		r.logger.Info("Positions rebuilt from fill history", "fills", len(fills))
	}
	return nil
}
