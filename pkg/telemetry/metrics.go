package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersSubmittedTotal = "dex_trader_orders_submitted_total"
	MetricOrdersRejectedTotal  = "dex_trader_orders_rejected_total"
	MetricChunksFilledTotal    = "dex_trader_chunks_filled_total"
	MetricChunksFailedTotal    = "dex_trader_chunks_failed_total"
	MetricTriggersTotal        = "dex_trader_triggers_total"
	MetricPnLRealizedTotal     = "dex_trader_pnl_realized_total"
	MetricEquity               = "dex_trader_equity"
	MetricPendingOrders        = "dex_trader_pending_orders"
	MetricReconcileDrift       = "dex_trader_reconcile_cash_drift"
	MetricSubmitLatency        = "dex_trader_submit_latency_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	OrdersSubmittedTotal metric.Int64Counter
	OrdersRejectedTotal  metric.Int64Counter
	ChunksFilledTotal    metric.Int64Counter
	ChunksFailedTotal    metric.Int64Counter
	TriggersTotal        metric.Int64Counter
	PnLRealizedTotal     metric.Float64Counter
	Equity               metric.Float64ObservableGauge
	PendingOrders        metric.Int64ObservableGauge
	ReconcileDrift       metric.Float64ObservableGauge
	SubmitLatency        metric.Float64Histogram

	// State for observable gauges
	mu            sync.RWMutex
	equityVal     float64
	pendingVal    int64
	driftByWallet map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			driftByWallet: make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersSubmittedTotal, err = meter.Int64Counter(MetricOrdersSubmittedTotal, metric.WithDescription("Total orders submitted for execution"))
	if err != nil {
		return err
	}

	m.OrdersRejectedTotal, err = meter.Int64Counter(MetricOrdersRejectedTotal, metric.WithDescription("Total orders rejected before submission"))
	if err != nil {
		return err
	}

	m.ChunksFilledTotal, err = meter.Int64Counter(MetricChunksFilledTotal, metric.WithDescription("Total chunks filled at a venue"))
	if err != nil {
		return err
	}

	m.ChunksFailedTotal, err = meter.Int64Counter(MetricChunksFailedTotal, metric.WithDescription("Total chunks abandoned after retries"))
	if err != nil {
		return err
	}

	m.TriggersTotal, err = meter.Int64Counter(MetricTriggersTotal, metric.WithDescription("Total conditional order triggers"))
	if err != nil {
		return err
	}

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss"))
	if err != nil {
		return err
	}

	m.SubmitLatency, err = meter.Float64Histogram(MetricSubmitLatency, metric.WithDescription("Latency of venue submissions"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.Equity, err = meter.Float64ObservableGauge(MetricEquity, metric.WithDescription("Current portfolio equity"),
		metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.equityVal)
			return nil
		}))
	if err != nil {
		return err
	}

	m.PendingOrders, err = meter.Int64ObservableGauge(MetricPendingOrders, metric.WithDescription("Conditional orders waiting on a trigger"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.pendingVal)
			return nil
		}))
	if err != nil {
		return err
	}

	m.ReconcileDrift, err = meter.Float64ObservableGauge(MetricReconcileDrift, metric.WithDescription("Cash drift between ledger and wallet at last reconcile"),
		metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for wallet, drift := range m.driftByWallet {
				obs.Observe(drift, metric.WithAttributes(attribute.String("wallet", wallet)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetEquity records the latest equity valuation for the gauge.
func (m *MetricsHolder) SetEquity(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equityVal = v
}

// SetPendingOrders records the current pending order count for the gauge.
func (m *MetricsHolder) SetPendingOrders(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingVal = n
}

// SetReconcileDrift records the cash drift observed for a wallet.
func (m *MetricsHolder) SetReconcileDrift(wallet string, drift float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driftByWallet[wallet] = drift
}
