// Package engine is the orchestrator: it accepts strategy signals, runs them
// through the risk gate, and routes them to immediate execution or the
// conditional order scheduler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dex_trader/internal/alert"
	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/pkg/concurrency"
	apperrors "dex_trader/pkg/errors"
	"dex_trader/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Engine runs one select loop over incoming signals, scheduler triggers and
// shutdown. Order execution happens on a worker pool so a slow venue never
// blocks trigger evaluation; chunks inside one order stay sequential.
type Engine struct {
	cfg       *config.Config
	cache     core.IPriceCache
	gate      core.IRiskGate
	exec      core.IExecutionEngine
	scheduler core.IOrderScheduler
	ledger    core.ILedger
	pool      *concurrency.WorkerPool
	metrics   *telemetry.MetricsHolder
	alerts    *alert.Manager
	logger    core.ILogger

	signals chan core.Signal

	halted     atomic.Bool
	haltReason atomic.Value // string

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	mu      sync.Mutex
}

// New wires the orchestrator.
func New(
	cfg *config.Config,
	cache core.IPriceCache,
	gate core.IRiskGate,
	exec core.IExecutionEngine,
	scheduler core.IOrderScheduler,
	ledger core.ILedger,
	metrics *telemetry.MetricsHolder,
	logger core.ILogger,
) *Engine {
	e := &Engine{
		cfg:       cfg,
		cache:     cache,
		gate:      gate,
		exec:      exec,
		scheduler: scheduler,
		ledger:    ledger,
		metrics:   metrics,
		logger:    logger.WithField("component", "engine"),
		signals:   make(chan core.Signal, 128),
	}
	e.haltReason.Store("")
	e.pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "execution",
		MaxWorkers:  cfg.Execution.PoolWorkers,
		MaxCapacity: cfg.Execution.PoolCapacity,
	}, logger)
	return e
}

// Run blocks until the context is cancelled, processing signals and triggers.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.started = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.mu.Unlock()

	defer close(e.done)
	e.logger.Info("Engine loop started",
		"paper_trading", e.cfg.System.PaperTrading,
		"min_confidence", e.cfg.System.MinConfidence)

	equityTicker := time.NewTicker(10 * time.Second)
	defer equityTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.pool.Stop()
			e.logger.Info("Engine loop stopped")
			return nil

		case sig := <-e.signals:
			e.processSignal(ctx, sig)

		case order, ok := <-e.scheduler.Triggered():
			if !ok {
				continue
			}
			e.dispatchTriggered(ctx, order)

		case <-equityTicker.C:
			if e.metrics != nil {
				eq := e.ledger.Valuation(e.cache)
				f, _ := eq.Total.Float64()
				e.metrics.SetEquity(f)
			}
		}
	}
}

// SetAlerts installs an optional operator notification sink.
func (e *Engine) SetAlerts(m *alert.Manager) {
	e.alerts = m
}

// Stop cancels the loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// HandleSignal accepts a strategy signal into the engine. It fails fast when
// trading is halted or the queue is full; acceptance does not mean the order
// will pass the risk gate.
func (e *Engine) HandleSignal(sig core.Signal) error {
	if e.halted.Load() {
		return fmt.Errorf("%w: %s", apperrors.ErrTradingHalted, e.haltReason.Load().(string))
	}

	select {
	case e.signals <- sig:
		return nil
	default:
		return fmt.Errorf("signal queue full, dropping %s %s", sig.Side, sig.Pair)
	}
}

// CancelPending requests cancellation of a pending conditional order.
func (e *Engine) CancelPending(id string) error {
	return e.scheduler.Cancel(id)
}

// Snapshot returns the current engine state for the dashboard/CLI.
func (e *Engine) Snapshot() core.EngineSnapshot {
	return core.EngineSnapshot{
		Equity:        e.ledger.Valuation(e.cache),
		OpenPositions: e.ledger.Positions(),
		PendingOrders: e.scheduler.Pending(),
		Halted:        e.halted.Load(),
		HaltReason:    e.haltReason.Load().(string),
		TakenAt:       time.Now().UTC(),
	}
}

// Halt flips the kill switch. Once halted the engine accepts no new signals
// and in-flight executions stop at their next chunk boundary. Only a restart
// clears the halt.
func (e *Engine) Halt(reason string) {
	if e.halted.CompareAndSwap(false, true) {
		e.haltReason.Store(reason)
		e.logger.Error("KILL SWITCH: trading halted", "reason", reason)
		if e.alerts != nil {
			e.alerts.NotifyHalt(reason)
		}
	}
}

// IsHalted reports the kill-switch state. Installed into the execution
// engine as its chunk-boundary probe.
func (e *Engine) IsHalted() bool {
	return e.halted.Load()
}

// processSignal turns a signal into an order and routes it.
func (e *Engine) processSignal(ctx context.Context, sig core.Signal) {
	if sig.Confidence < e.cfg.System.MinConfidence {
		e.logger.Debug("Signal below confidence floor",
			"pair", sig.Pair, "confidence", sig.Confidence, "floor", e.cfg.System.MinConfidence)
		return
	}

	order := core.OrderFromSignal(sig,
		decimal.NewFromFloat(e.cfg.Execution.DefaultMaxSlipPct),
		decimal.NewFromFloat(e.cfg.Execution.DefaultMaxFee))

	if err := e.checkRisk(order); err != nil {
		e.rejected(ctx, order, err)
		return
	}

	if order.Type.IsConditional() {
		if _, err := e.scheduler.Enqueue(order); err != nil {
			e.logger.Error("Failed to enqueue conditional order", "order_id", order.ID, "error", err)
		}
		return
	}

	e.dispatch(ctx, order, 0)
}

// dispatchTriggered re-runs the risk gate on a triggered order against the
// current portfolio, then executes it. Approval at enqueue time does not
// carry over; conditions may have changed while the order waited.
func (e *Engine) dispatchTriggered(ctx context.Context, order *core.Order) {
	if err := e.checkRisk(order); err != nil {
		e.rejected(ctx, order, err)
		return
	}
	e.dispatch(ctx, order, 0)
}

// checkRisk resolves the reference price and evaluates the gate.
func (e *Engine) checkRisk(order *core.Order) error {
	snap, ok := e.cache.Read(order.Pair)
	if !ok || snap.IsStale(time.Now(), e.cfg.Execution.PriceStaleness()) {
		return fmt.Errorf("%w: no fresh price for %s", apperrors.ErrPriceUnavailable, order.Pair)
	}
	return e.gate.Evaluate(order, snap.Price, e.ledger.View(e.cache))
}

func (e *Engine) rejected(ctx context.Context, order *core.Order, err error) {
	if e.metrics != nil {
		e.metrics.OrdersRejectedTotal.Add(ctx, 1)
	}
	var rejection *apperrors.RiskRejection
	if errors.As(err, &rejection) {
		e.logger.Warn("Order rejected by risk gate",
			"order_id", order.ID, "pair", order.Pair, "rule", rejection.Rule, "detail", rejection.Detail)
		return
	}
	e.logger.Warn("Order rejected", "order_id", order.ID, "pair", order.Pair, "error", err)
}

// dispatch runs the order on the worker pool. depth counts remainder
// re-queues; the remainder of a partial fill is retried at most once.
func (e *Engine) dispatch(ctx context.Context, order *core.Order, depth int) {
	if e.metrics != nil {
		e.metrics.OrdersSubmittedTotal.Add(ctx, 1)
	}

	err := e.pool.Submit(func() {
		result, err := e.exec.Submit(ctx, order)
		if err != nil {
			if errors.Is(err, apperrors.ErrLedger) {
				e.Halt(fmt.Sprintf("ledger error on order %s: %v", order.ID, err))
				return
			}
			e.logger.Error("Order execution failed",
				"order_id", order.ID, "pair", order.Pair, "error", err)
			return
		}

		if result.Partial() && depth == 0 && !e.halted.Load() {
			remainder := order.WithSize(result.Unfilled)
			e.logger.Info("Re-queueing unfilled remainder",
				"order_id", order.ID, "remainder_id", remainder.ID, "size", remainder.Size.String())
			e.dispatch(ctx, remainder, depth+1)
		}
	})
	if err != nil {
		e.logger.Error("Failed to submit execution task", "order_id", order.ID, "error", err)
	}
}
