// Package safety provides pre-flight checks run before trading starts
package safety

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
)

// Checker validates the environment before the engine accepts its first
// signal. A failed check aborts startup; it is cheaper to refuse to start
// than to halt mid-session.
type Checker struct {
	logger core.ILogger
}

func NewChecker(logger core.ILogger) *Checker {
	return &Checker{
		logger: logger.WithField("component", "safety"),
	}
}

// CheckVenueConnectivity verifies every venue quotes every configured pair.
func (c *Checker) CheckVenueConnectivity(ctx context.Context, venues []core.IDexClient, pairs []string) error {
	if len(venues) == 0 {
		return fmt.Errorf("no venues configured")
	}

	for _, venue := range venues {
		c.logger.Info("Checking venue connectivity", "venue", venue.Name())

		for _, pair := range pairs {
			price, err := venue.GetPrice(ctx, pair)
			if err != nil {
				return fmt.Errorf("venue %s cannot quote %s: %w", venue.Name(), pair, err)
			}
			if price.LessThanOrEqual(decimal.Zero) {
				return fmt.Errorf("venue %s returned invalid price for %s: %s", venue.Name(), pair, price)
			}
		}
	}

	c.logger.Info("Venue connectivity check passed", "venues", len(venues), "pairs", len(pairs))
	return nil
}

// CheckWallets verifies the rotation pool is usable and, when a balance
// source is wired, that the pool holds cash.
func (c *Checker) CheckWallets(ctx context.Context, wallets core.IWalletProvider) error {
	pool := wallets.Wallets()
	if len(pool) == 0 {
		return fmt.Errorf("wallet rotation pool is empty")
	}

	balance, err := wallets.CashBalance(ctx)
	if err != nil {
		// Paper trading may run without a balance source.
		c.logger.Warn("Wallet balance unavailable, skipping cash check", "error", err.Error())
		return nil
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("wallet pool holds no cash: %s", balance)
	}

	c.logger.Info("Wallet check passed", "wallets", len(pool), "cash", balance.String())
	return nil
}

// CheckTradingParameters validates the derived trading economics: chunk
// sizing must make progress and the slippage and fee caps must leave room
// for a profitable round trip.
func (c *Checker) CheckTradingParameters(cfg *config.Config) error {
	if !cfg.Risk.TradingEnabled {
		return fmt.Errorf("trading is disabled in configuration")
	}
	if cfg.System.StartingCash <= 0 && cfg.System.PaperTrading {
		return fmt.Errorf("paper trading requires positive starting cash: %f", cfg.System.StartingCash)
	}
	if cfg.Execution.SplitThreshold > 0 && cfg.Execution.MaxChunkSize > cfg.Execution.SplitThreshold {
		c.logger.Warn("Chunk size above split threshold, orders will never split",
			"max_chunk_size", cfg.Execution.MaxChunkSize,
			"split_threshold", cfg.Execution.SplitThreshold)
	}

	roundTripCost := cfg.Execution.DefaultMaxSlipPct * 2
	if roundTripCost >= cfg.Risk.StopDistancePct && cfg.Risk.StopDistancePct > 0 {
		return fmt.Errorf("slippage cap consumes the whole stop distance: round trip %f vs stop %f",
			roundTripCost, cfg.Risk.StopDistancePct)
	}

	return nil
}

// RunAll executes every pre-flight check in order.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config, venues []core.IDexClient, wallets core.IWalletProvider) error {
	c.logger.Info("Starting pre-flight checks")

	if err := c.CheckTradingParameters(cfg); err != nil {
		return fmt.Errorf("trading parameter check failed: %w", err)
	}
	if err := c.CheckVenueConnectivity(ctx, venues, cfg.Feed.Pairs); err != nil {
		return fmt.Errorf("venue connectivity check failed: %w", err)
	}
	if err := c.CheckWallets(ctx, wallets); err != nil {
		return fmt.Errorf("wallet check failed: %w", err)
	}

	c.logger.Info("Pre-flight checks completed successfully")
	return nil
}
