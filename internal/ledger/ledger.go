// Package ledger is the single source of truth for cash, positions and
// realized PnL.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dex_trader/internal/core"
	apperrors "dex_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// Ledger applies fills atomically and serves point-in-time valuations.
// All mutation is serialized through one mutex: concurrent fills, for the
// same or different pairs, apply one at a time in arrival order and are
// never reordered. No other component mutates cash or positions.
type Ledger struct {
	mu sync.Mutex

	cash          decimal.Decimal
	positions     map[string]*core.Position
	totalRealized decimal.Decimal

	// Daily loss tracking, rolled over at UTC midnight.
	dailyRealized decimal.Decimal
	day           string

	// Session statistics.
	highWaterMark decimal.Decimal
	maxDrawdown   decimal.Decimal
	fillCount     int
	winCount      int
	sellCount     int

	store  core.IFillStore
	logger core.ILogger
	now    func() time.Time
}

// New creates a ledger with the given starting cash. The store, when not
// nil, receives every applied fill for the append-only history.
func New(startingCash decimal.Decimal, store core.IFillStore, logger core.ILogger) *Ledger {
	l := &Ledger{
		cash:          startingCash,
		positions:     make(map[string]*core.Position),
		totalRealized: decimal.Zero,
		dailyRealized: decimal.Zero,
		highWaterMark: startingCash,
		store:         store,
		logger:        logger.WithField("component", "ledger"),
		now:           time.Now,
	}
	l.day = l.now().UTC().Format("2006-01-02")
	return l
}

// SetClock injects a clock for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// ApplyFill books one fill. For a buy, the position grows and its average
// entry price becomes the size-weighted average; cash drops by cost plus
// fee. For a sell, PnL is realized against the average entry, cash grows by
// proceeds minus fee, and the position record is removed once its size
// reaches zero. A sell larger than the held size fails with
// InsufficientPosition and mutates nothing.
func (l *Ledger) ApplyFill(fill *core.Fill) error {
	if fill == nil || !fill.FilledSize.IsPositive() || !fill.AvgPrice.IsPositive() || fill.FeePaid.IsNegative() {
		return fmt.Errorf("%w: malformed fill %+v", apperrors.ErrLedger, fill)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDayLocked()

	switch fill.Side {
	case core.SideBuy:
		l.applyBuyLocked(fill)
	case core.SideSell:
		if err := l.applySellLocked(fill); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown side %q", apperrors.ErrLedger, fill.Side)
	}

	l.fillCount++

	if err := l.verifyLocked(); err != nil {
		return err
	}

	if l.store != nil {
		if err := l.store.SaveFill(context.Background(), fill); err != nil {
			// History persistence is best effort; the ledger stays authoritative.
			l.logger.Warn("Failed to persist fill", "order_id", fill.OrderID, "error", err)
		}
	}

	l.logger.Debug("Fill applied",
		"order_id", fill.OrderID,
		"pair", fill.Pair,
		"side", fill.Side,
		"size", fill.FilledSize.String(),
		"price", fill.AvgPrice.String(),
		"cash", l.cash.String())

	return nil
}

func (l *Ledger) applyBuyLocked(fill *core.Fill) {
	cost := fill.FilledSize.Mul(fill.AvgPrice)
	l.cash = l.cash.Sub(cost).Sub(fill.FeePaid)

	pos, ok := l.positions[fill.Pair]
	if !ok {
		pos = &core.Position{
			Symbol:            fill.Pair,
			Size:              decimal.Zero,
			AverageEntryPrice: decimal.Zero,
			RealizedPnL:       decimal.Zero,
		}
		l.positions[fill.Pair] = pos
	}

	newSize := pos.Size.Add(fill.FilledSize)
	pos.AverageEntryPrice = pos.Size.Mul(pos.AverageEntryPrice).
		Add(fill.FilledSize.Mul(fill.AvgPrice)).
		Div(newSize)
	pos.Size = newSize
}

func (l *Ledger) applySellLocked(fill *core.Fill) error {
	pos, ok := l.positions[fill.Pair]
	if !ok || pos.Size.LessThan(fill.FilledSize) {
		held := decimal.Zero
		if ok {
			held = pos.Size
		}
		return fmt.Errorf("%w: sell %s %s but holding %s",
			apperrors.ErrInsufficientPosition, fill.FilledSize.String(), fill.Pair, held.String())
	}

	proceeds := fill.FilledSize.Mul(fill.AvgPrice)
	pnl := fill.FilledSize.Mul(fill.AvgPrice.Sub(pos.AverageEntryPrice))

	l.cash = l.cash.Add(proceeds).Sub(fill.FeePaid)
	pos.Size = pos.Size.Sub(fill.FilledSize)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	l.totalRealized = l.totalRealized.Add(pnl)
	l.dailyRealized = l.dailyRealized.Add(pnl)

	l.sellCount++
	if pnl.IsPositive() {
		l.winCount++
	}

	if pos.Size.IsZero() {
		// Realized PnL is already flushed into the ledger total above.
		delete(l.positions, fill.Pair)
	}
	return nil
}

// rollDayLocked resets the daily realized PnL at UTC midnight.
func (l *Ledger) rollDayLocked() {
	today := l.now().UTC().Format("2006-01-02")
	if today != l.day {
		l.day = today
		l.dailyRealized = decimal.Zero
	}
}

// verifyLocked checks internal invariants. A violation is fatal for trading.
func (l *Ledger) verifyLocked() error {
	for pair, pos := range l.positions {
		if pos.Size.IsNegative() {
			return fmt.Errorf("%w: negative position %s for %s", apperrors.ErrLedger, pos.Size.String(), pair)
		}
		if pos.Size.IsPositive() && pos.AverageEntryPrice.IsNegative() {
			return fmt.Errorf("%w: negative entry price for %s", apperrors.ErrLedger, pair)
		}
	}
	return nil
}

// Valuation combines cash and mark-to-market of open positions. Pairs with
// no usable price are reported in MissingPrices and contribute nothing; they
// are never assumed zero-valued positions. Read-only.
func (l *Ledger) Valuation(cache core.IPriceCache) core.Equity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.valuationLocked(cache)
}

func (l *Ledger) valuationLocked(cache core.IPriceCache) core.Equity {
	eq := core.Equity{
		Cash:        l.cash,
		MarketValue: decimal.Zero,
		ComputedAt:  l.now(),
	}

	for pair, pos := range l.positions {
		snap, ok := cache.Read(pair)
		if !ok {
			eq.MissingPrices = append(eq.MissingPrices, pair)
			continue
		}
		eq.MarketValue = eq.MarketValue.Add(pos.Size.Mul(snap.Price))
	}

	eq.Total = eq.Cash.Add(eq.MarketValue)
	return eq
}

// View builds the snapshot the risk gate evaluates against. This is the one
// place the equity high-water mark advances.
func (l *Ledger) View(cache core.IPriceCache) *core.PortfolioView {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDayLocked()
	eq := l.valuationLocked(cache)

	if eq.Total.GreaterThan(l.highWaterMark) {
		l.highWaterMark = eq.Total
	}
	if l.highWaterMark.IsPositive() {
		dd := l.highWaterMark.Sub(eq.Total).Div(l.highWaterMark)
		if dd.GreaterThan(l.maxDrawdown) {
			l.maxDrawdown = dd
		}
	}

	gross := decimal.Zero
	positions := make(map[string]core.Position, len(l.positions))
	for pair, pos := range l.positions {
		positions[pair] = *pos
		if snap, ok := cache.Read(pair); ok {
			gross = gross.Add(pos.Size.Abs().Mul(snap.Price))
		}
	}

	return &core.PortfolioView{
		Cash:             l.cash,
		Positions:        positions,
		Equity:           eq.Total,
		GrossExposure:    gross,
		HighWaterMark:    l.highWaterMark,
		DailyRealizedPnL: l.dailyRealized,
		TotalRealizedPnL: l.totalRealized,
	}
}

// Positions returns copies of all open positions.
func (l *Ledger) Positions() []core.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]core.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// TotalRealizedPnL returns the cumulative realized PnL.
func (l *Ledger) TotalRealizedPnL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalRealized
}

// Report summarizes the session for the shutdown log.
func (l *Ledger) Report() core.SessionReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	winRate := 0.0
	if l.sellCount > 0 {
		winRate = float64(l.winCount) / float64(l.sellCount)
	}
	return core.SessionReport{
		RealizedPnL: l.totalRealized,
		MaxDrawdown: l.maxDrawdown,
		FillCount:   l.fillCount,
		WinRate:     winRate,
	}
}

// overwriteCash replaces the cash balance during reconciliation and returns
// the drift that was corrected.
func (l *Ledger) overwriteCash(observed decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	drift := observed.Sub(l.cash)
	l.cash = observed
	return drift
}

// rebuildPositions replaces open positions by replaying the fill history in
// order. Cash is untouched; the wallet balance is authoritative for cash.
func (l *Ledger) rebuildPositions(fills []*core.Fill) error {
	rebuilt := make(map[string]*core.Position)

	for _, fill := range fills {
		pos, ok := rebuilt[fill.Pair]
		if !ok {
			pos = &core.Position{Symbol: fill.Pair, Size: decimal.Zero, AverageEntryPrice: decimal.Zero, RealizedPnL: decimal.Zero}
			rebuilt[fill.Pair] = pos
		}

		switch fill.Side {
		case core.SideBuy:
			newSize := pos.Size.Add(fill.FilledSize)
			pos.AverageEntryPrice = pos.Size.Mul(pos.AverageEntryPrice).
				Add(fill.FilledSize.Mul(fill.AvgPrice)).
				Div(newSize)
			pos.Size = newSize
		case core.SideSell:
			if pos.Size.LessThan(fill.FilledSize) {
				return fmt.Errorf("%w: replay would oversell %s", apperrors.ErrLedger, fill.Pair)
			}
			pos.RealizedPnL = pos.RealizedPnL.Add(fill.FilledSize.Mul(fill.AvgPrice.Sub(pos.AverageEntryPrice)))
			pos.Size = pos.Size.Sub(fill.FilledSize)
		}
	}

	for pair, pos := range rebuilt {
		if pos.Size.IsZero() {
			delete(rebuilt, pair)
		}
	}

	l.mu.Lock()
	l.positions = rebuilt
	l.mu.Unlock()
	return nil
}
