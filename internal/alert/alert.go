// Package alert fans trading notifications out to operator channels.
package alert

import (
	"context"
	"sync"
	"time"

	"dex_trader/internal/core"
)

type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// Channel delivers one alert to one destination.
type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

// Manager broadcasts alerts to all registered channels. Delivery is async
// and never blocks the trading path; failures are logged and dropped.
type Manager struct {
	channels []Channel
	logger   core.ILogger
	mu       sync.RWMutex
}

func NewManager(logger core.ILogger) *Manager {
	return &Manager{
		channels: make([]Channel, 0),
		logger:   logger.WithField("component", "alert_manager"),
	}
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

func (m *Manager) Alert(ctx context.Context, level Level, title, message string, fields map[string]string) {
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.channels {
		go func(c Channel) {
			timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
}

// NotifyHalt reports a kill-switch trip.
func (m *Manager) NotifyHalt(reason string) {
	m.Alert(context.Background(), Critical, "Trading halted", reason, nil)
}

// NotifyDrift reports a cash drift caught by reconciliation.
func (m *Manager) NotifyDrift(ledgerCash, walletCash string) {
	m.Alert(context.Background(), Warning, "Cash drift detected",
		"ledger cash diverged from the wallet balance; wallet adopted",
		map[string]string{
			"ledger_cash": ledgerCash,
			"wallet_cash": walletCash,
		})
}
