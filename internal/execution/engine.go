// Package execution drives accepted orders through chunked venue submission.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	apperrors "dex_trader/pkg/errors"
	"dex_trader/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Engine submits orders to DEX venues. Large orders are cut into chunks with
// a randomized delay between chunks, each chunk retried with backoff and
// booked into the ledger the moment it fills, so a failure partway through
// never loses the fills already obtained.
type Engine struct {
	cfg     config.ExecutionConfig
	venues  []core.IDexClient // preference order, first is tried first
	cache   core.IPriceCache
	ledger  core.ILedger
	wallets core.IWalletProvider
	limiter *rate.Limiter
	metrics *telemetry.MetricsHolder
	logger  core.ILogger

	// halted is probed at every chunk boundary. Nil means never halted.
	halted func() bool

	rngMu sync.Mutex
	rng   *rand.Rand

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	maxSlipCap decimal.Decimal
	maxFeeCap  decimal.Decimal
	maxChunk   decimal.Decimal
	splitAt    decimal.Decimal
}

// NewEngine wires an execution engine. Venues must be in preference order.
func NewEngine(
	cfg config.ExecutionConfig,
	venues []core.IDexClient,
	cache core.IPriceCache,
	ledger core.ILedger,
	wallets core.IWalletProvider,
	metrics *telemetry.MetricsHolder,
	logger core.ILogger,
) *Engine {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Engine{
		cfg:        cfg,
		venues:     venues,
		cache:      cache,
		ledger:     ledger,
		wallets:    wallets,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    metrics,
		logger:     logger.WithField("component", "execution"),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
		sleep:      sleepCtx,
		maxSlipCap: decimal.NewFromFloat(cfg.DefaultMaxSlipPct),
		maxFeeCap:  decimal.NewFromFloat(cfg.DefaultMaxFee),
		maxChunk:   decimal.NewFromFloat(cfg.MaxChunkSize),
		splitAt:    decimal.NewFromFloat(cfg.SplitThreshold),
	}
}

// SetHaltCheck installs the kill-switch probe consulted at chunk boundaries.
func (e *Engine) SetHaltCheck(halted func() bool) {
	e.halted = halted
}

// SetClock injects clock and sleep for tests.
func (e *Engine) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	e.now = now
	e.sleep = sleep
}

// SetRandSource injects a deterministic jitter source for tests.
func (e *Engine) SetRandSource(src rand.Source) {
	e.rngMu.Lock()
	e.rng = rand.New(src)
	e.rngMu.Unlock()
}

// Submit executes the order. It returns an ExecutionResult describing what
// actually filled. A partial fill is returned with a nil error; the caller
// decides whether to re-queue the remainder. Submit fails without touching a
// venue when the reference price is stale (PriceUnavailable) or the order's
// slippage or fee tolerance exceeds the configured caps (LimitsExceeded).
// Only when no chunk fills at all does it return DexSubmission.
func (e *Engine) Submit(ctx context.Context, order *core.Order) (*core.ExecutionResult, error) {
	start := e.now()

	snap, ok := e.cache.Read(order.Pair)
	if !ok || snap.IsStale(e.now(), e.cfg.PriceStaleness()) {
		return nil, fmt.Errorf("%w: no fresh price for %s", apperrors.ErrPriceUnavailable, order.Pair)
	}

	if order.MaxSlippagePct.GreaterThan(e.maxSlipCap) {
		return nil, fmt.Errorf("%w: slippage tolerance %s above cap %s",
			apperrors.ErrLimitsExceeded, order.MaxSlippagePct.String(), e.maxSlipCap.String())
	}
	if order.MaxFee.GreaterThan(e.maxFeeCap) {
		return nil, fmt.Errorf("%w: fee tolerance %s above cap %s",
			apperrors.ErrLimitsExceeded, order.MaxFee.String(), e.maxFeeCap.String())
	}

	chunks := SplitChunks(order.Size, e.maxChunk, e.splitAt)
	result := &core.ExecutionResult{
		OrderID:  order.ID,
		Filled:   decimal.Zero,
		Unfilled: order.Size,
	}

	e.logger.Info("Submitting order",
		"order_id", order.ID,
		"pair", order.Pair,
		"side", order.Side,
		"size", order.Size.String(),
		"chunks", len(chunks))

	var fatal error

chunkLoop:
	for i, chunk := range chunks {
		if e.halted != nil && e.halted() {
			e.logger.Warn("Trading halted, stopping submission", "order_id", order.ID, "chunks_done", i)
			break
		}

		// Re-check freshness at every boundary: a feed outage mid-order must
		// not let later chunks execute against a dead quote.
		if snap, ok := e.cache.Read(order.Pair); !ok || snap.IsStale(e.now(), e.cfg.PriceStaleness()) {
			e.logger.Warn("Price went stale mid-order, stopping submission", "order_id", order.ID, "chunks_done", i)
			break
		}

		if i > 0 {
			e.rngMu.Lock()
			delay := JitterDelay(e.rng, e.cfg.JitterMin(), e.cfg.JitterMax())
			e.rngMu.Unlock()
			if err := e.sleep(ctx, delay); err != nil {
				break
			}
		}

		fill, err := e.submitChunk(ctx, order, chunk)
		if err != nil {
			e.logger.Error("Chunk failed on all venues",
				"order_id", order.ID, "chunk", i+1, "of", len(chunks), "error", err)
			if e.metrics != nil {
				e.metrics.ChunksFailedTotal.Add(ctx, 1)
			}
			break
		}

		if err := e.ledger.ApplyFill(fill); err != nil {
			if errors.Is(err, apperrors.ErrLedger) {
				fatal = err
				result.Fills = append(result.Fills, fill)
				result.Filled = result.Filled.Add(fill.FilledSize)
				break chunkLoop
			}
			e.logger.Error("Failed to book fill", "order_id", order.ID, "error", err)
			break
		}

		result.Fills = append(result.Fills, fill)
		result.Filled = result.Filled.Add(fill.FilledSize)
		if e.metrics != nil {
			e.metrics.ChunksFilledTotal.Add(ctx, 1)
		}
	}

	result.Unfilled = order.Size.Sub(result.Filled)

	if e.metrics != nil {
		e.metrics.SubmitLatency.Record(ctx, float64(e.now().Sub(start).Milliseconds()))
	}

	if fatal != nil {
		return result, fatal
	}
	if len(result.Fills) == 0 {
		return result, fmt.Errorf("%w: order %s obtained no fills", apperrors.ErrDexSubmission, order.ID)
	}

	e.logger.Info("Order execution finished",
		"order_id", order.ID,
		"filled", result.Filled.String(),
		"unfilled", result.Unfilled.String())
	return result, nil
}

// submitChunk tries each venue in preference order, retrying transient venue
// errors with exponential backoff before falling through to the next venue.
func (e *Engine) submitChunk(ctx context.Context, order *core.Order, size decimal.Decimal) (*core.Fill, error) {
	wallet := e.pickWallet()

	req := &core.TradeRequest{
		Pair:            order.Pair,
		Side:            order.Side,
		Type:            order.Type,
		Size:            size,
		LimitPrice:      order.LimitPrice,
		StopPrice:       order.StopPrice,
		TakeProfitPrice: order.TakeProfitPrice,
		MaxSlippagePct:  order.MaxSlippagePct,
		MaxFee:          order.MaxFee,
		Wallet:          wallet,
		OrderID:         order.ID,
	}

	policy := retrypolicy.NewBuilder[*core.Fill]().
		WithBackoff(e.cfg.RetryBaseDelay(), e.cfg.RetryMaxDelay()).
		WithJitterFactor(0.25).
		WithMaxRetries(e.cfg.MaxRetries).
		Build()

	var lastErr error
	for _, venue := range e.venues {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		fill, err := failsafe.With[*core.Fill](policy).
			WithContext(ctx).
			Get(func() (*core.Fill, error) {
				return venue.SubmitTrade(ctx, req)
			})
		if err == nil {
			fill.OrderID = order.ID
			fill.Venue = venue.Name()
			return fill, nil
		}

		lastErr = err
		e.logger.Warn("Venue rejected chunk, falling through",
			"order_id", order.ID, "venue", venue.Name(), "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no venues configured")
	}
	return nil, lastErr
}

func (e *Engine) pickWallet() core.Wallet {
	if e.cfg.RotateWallets {
		return e.wallets.NextWallet()
	}
	ws := e.wallets.Wallets()
	if len(ws) > 0 {
		return ws[0]
	}
	return core.Wallet{}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
