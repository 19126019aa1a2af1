// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dex_trader/pkg/validate"
)

// Config represents the complete configuration structure
type Config struct {
	System    SystemConfig    `yaml:"system"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Feed      FeedConfig      `yaml:"feed"`
	Wallets   WalletsConfig   `yaml:"wallets"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Alerts    AlertConfig     `yaml:"alerts"`
}

// SystemConfig contains application-level settings
type SystemConfig struct {
	LogLevel     string  `yaml:"log_level"`
	PaperTrading bool    `yaml:"paper_trading"`
	StartingCash float64 `yaml:"starting_cash"`
	// Venues in preference order; execution falls through on venue error.
	VenuePreference []string `yaml:"venue_preference"`
	// Signals below this confidence are dropped before the risk gate.
	MinConfidence float64 `yaml:"min_confidence"`
}

// RiskConfig contains the limits consumed by the risk gate
type RiskConfig struct {
	TradingEnabled     bool    `yaml:"trading_enabled"`
	MaxPositionSizePct float64 `yaml:"max_position_size_pct"` // of equity, e.g. 0.20
	MaxPositionRiskPct float64 `yaml:"max_position_risk_pct"` // loss at stop distance, e.g. 0.02
	StopDistancePct    float64 `yaml:"stop_distance_pct"`     // assumed stop distance when order has none
	DailyLossLimitPct  float64 `yaml:"daily_loss_limit_pct"`  // e.g. 0.15
	MaxDrawdownPct     float64 `yaml:"max_drawdown_pct"`      // from equity high-water mark
	MaxLeverage        float64 `yaml:"max_leverage"`          // gross exposure / equity
}

// ExecutionConfig contains chunking, pacing and retry settings
type ExecutionConfig struct {
	MaxChunkSize        float64 `yaml:"max_chunk_size"`        // base units per venue transaction
	SplitThreshold      float64 `yaml:"split_threshold"`       // orders above this get chunked
	JitterMinMs         int64   `yaml:"jitter_min_ms"`         // lower bound of inter-chunk delay
	JitterMaxMs         int64   `yaml:"jitter_max_ms"`         // upper bound of inter-chunk delay
	MaxRetries          int     `yaml:"max_retries"`           // per-chunk venue retries
	RetryBaseDelayMs    int64   `yaml:"retry_base_delay_ms"`   //
	RetryMaxDelayMs     int64   `yaml:"retry_max_delay_ms"`    //
	PriceStalenessMs    int64   `yaml:"price_staleness_ms"`    // quotes older than this are unusable
	RotateWallets       bool    `yaml:"rotate_wallets"`        //
	DefaultMaxSlipPct   float64 `yaml:"default_max_slippage_pct"`
	DefaultMaxFee       float64 `yaml:"default_max_fee"`
	RateLimit           float64 `yaml:"rate_limit"`   // venue submissions per second
	RateBurst           int     `yaml:"rate_burst"`   //
	PoolWorkers         int     `yaml:"pool_workers"` // concurrent order executions
	PoolCapacity        int     `yaml:"pool_capacity"`
}

// JitterMin returns the lower bound of the inter-chunk delay.
func (c ExecutionConfig) JitterMin() time.Duration { return time.Duration(c.JitterMinMs) * time.Millisecond }

// JitterMax returns the upper bound of the inter-chunk delay.
func (c ExecutionConfig) JitterMax() time.Duration { return time.Duration(c.JitterMaxMs) * time.Millisecond }

// RetryBaseDelay returns the initial per-chunk retry backoff.
func (c ExecutionConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the per-chunk retry backoff cap.
func (c ExecutionConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// PriceStaleness returns the maximum usable quote age.
func (c ExecutionConfig) PriceStaleness() time.Duration {
	return time.Duration(c.PriceStalenessMs) * time.Millisecond
}

// SchedulerConfig contains conditional order settings
type SchedulerConfig struct {
	SweepIntervalMs      int64 `yaml:"sweep_interval_ms"` // periodic re-check of all pending orders
	MaxPendingAgeSeconds int64 `yaml:"max_pending_age_seconds"`
	TriggerBuffer        int   `yaml:"trigger_buffer"` // capacity of the triggered order channel
}

// SweepInterval returns the period of the full pending-set re-check.
func (c SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMs) * time.Millisecond
}

// MaxPendingAge returns how long an order may wait before it expires.
func (c SchedulerConfig) MaxPendingAge() time.Duration {
	return time.Duration(c.MaxPendingAgeSeconds) * time.Second
}

// FeedConfig contains the market-data stream settings
type FeedConfig struct {
	URL              string   `yaml:"url"`
	Pairs            []string `yaml:"pairs"`
	ReconnectDelayMs int64    `yaml:"reconnect_delay_ms"`
}

// ReconnectDelay returns the wait between stream reconnect attempts.
func (c FeedConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// WalletsConfig lists the rotation pool. Keys never appear here; addresses
// are resolved to signers by the external wallet provider.
type WalletsConfig struct {
	Addresses []string `yaml:"addresses"`
}

// LedgerConfig contains ledger and reconciliation settings
type LedgerConfig struct {
	ReconcileIntervalSeconds int64   `yaml:"reconcile_interval_seconds"` // 0 disables reconciliation
	ReconcileTolerance       float64 `yaml:"reconcile_tolerance"`        // absolute cash drift ignored below this
	FillStorePath            string  `yaml:"fill_store_path"`            // empty = in-memory store
}

// ReconcileInterval returns the period between reconciliation passes.
func (c LedgerConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort     int  `yaml:"metrics_port"`
	EnableMetrics   bool `yaml:"enable_metrics"`
	DashboardPort   int  `yaml:"dashboard_port"`
	EnableDashboard bool `yaml:"enable_dashboard"`
}

// AlertConfig contains operator notification settings. Empty credentials
// leave the corresponding channel disabled.
type AlertConfig struct {
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateRisk(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateExecution(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateScheduler(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateFeed(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateWallets(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateLedger(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	if c.System.StartingCash < 0 {
		return ValidationError{
			Field:   "system.starting_cash",
			Value:   c.System.StartingCash,
			Message: "must not be negative",
		}
	}
	if len(c.System.VenuePreference) == 0 {
		return ValidationError{
			Field:   "system.venue_preference",
			Message: "at least one venue must be listed",
		}
	}
	if c.System.MinConfidence < 0 || c.System.MinConfidence > 1 {
		return ValidationError{
			Field:   "system.min_confidence",
			Value:   c.System.MinConfidence,
			Message: "must be within [0, 1]",
		}
	}
	return nil
}

func (c *Config) validateRisk() error {
	pctFields := []struct {
		name  string
		value float64
	}{
		{"risk.max_position_size_pct", c.Risk.MaxPositionSizePct},
		{"risk.max_position_risk_pct", c.Risk.MaxPositionRiskPct},
		{"risk.stop_distance_pct", c.Risk.StopDistancePct},
		{"risk.daily_loss_limit_pct", c.Risk.DailyLossLimitPct},
		{"risk.max_drawdown_pct", c.Risk.MaxDrawdownPct},
	}
	for _, f := range pctFields {
		if f.value < 0 || f.value > 1 {
			return ValidationError{
				Field:   f.name,
				Value:   f.value,
				Message: "must be a fraction within [0, 1]",
			}
		}
	}
	if c.Risk.MaxLeverage < 0 {
		return ValidationError{
			Field:   "risk.max_leverage",
			Value:   c.Risk.MaxLeverage,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateExecution() error {
	if c.Execution.MaxChunkSize <= 0 {
		return ValidationError{
			Field:   "execution.max_chunk_size",
			Value:   c.Execution.MaxChunkSize,
			Message: "must be positive",
		}
	}
	if c.Execution.SplitThreshold < 0 {
		return ValidationError{
			Field:   "execution.split_threshold",
			Value:   c.Execution.SplitThreshold,
			Message: "must not be negative",
		}
	}
	if c.Execution.JitterMinMs < 0 || c.Execution.JitterMaxMs < c.Execution.JitterMinMs {
		return ValidationError{
			Field:   "execution.jitter_max_ms",
			Value:   c.Execution.JitterMaxMs,
			Message: "jitter window must satisfy 0 <= jitter_min_ms <= jitter_max_ms",
		}
	}
	if c.Execution.MaxRetries < 0 || c.Execution.MaxRetries > 20 {
		return ValidationError{
			Field:   "execution.max_retries",
			Value:   c.Execution.MaxRetries,
			Message: "must be within [0, 20]",
		}
	}
	if c.Execution.PriceStalenessMs <= 0 {
		return ValidationError{
			Field:   "execution.price_staleness_ms",
			Value:   c.Execution.PriceStalenessMs,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.SweepIntervalMs <= 0 {
		return ValidationError{
			Field:   "scheduler.sweep_interval_ms",
			Value:   c.Scheduler.SweepIntervalMs,
			Message: "must be positive",
		}
	}
	if c.Scheduler.MaxPendingAgeSeconds <= 0 {
		return ValidationError{
			Field:   "scheduler.max_pending_age_seconds",
			Value:   c.Scheduler.MaxPendingAgeSeconds,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.URL == "" {
		return ValidationError{
			Field:   "feed.url",
			Message: "feed URL is required",
		}
	}
	if len(c.Feed.Pairs) == 0 {
		return ValidationError{
			Field:   "feed.pairs",
			Message: "at least one pair must be subscribed",
		}
	}
	for _, pair := range c.Feed.Pairs {
		if err := validate.Pair(pair); err != nil {
			return ValidationError{
				Field:   "feed.pairs",
				Value:   pair,
				Message: err.Error(),
			}
		}
	}
	return nil
}

func (c *Config) validateWallets() error {
	if len(c.Wallets.Addresses) == 0 {
		return ValidationError{
			Field:   "wallets.addresses",
			Message: "at least one wallet address is required",
		}
	}
	for _, addr := range c.Wallets.Addresses {
		if err := validate.WalletAddress(addr); err != nil {
			return ValidationError{
				Field:   "wallets.addresses",
				Value:   addr,
				Message: err.Error(),
			}
		}
	}
	return nil
}

func (c *Config) validateLedger() error {
	if c.Ledger.ReconcileIntervalSeconds < 0 {
		return ValidationError{
			Field:   "ledger.reconcile_interval_seconds",
			Value:   c.Ledger.ReconcileIntervalSeconds,
			Message: "must not be negative (0 disables reconciliation)",
		}
	}
	if c.Ledger.ReconcileTolerance < 0 {
		return ValidationError{
			Field:   "ledger.reconcile_tolerance",
			Value:   c.Ledger.ReconcileTolerance,
			Message: "must not be negative",
		}
	}
	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			LogLevel:        "INFO",
			PaperTrading:    true,
			StartingCash:    10000.0,
			VenuePreference: []string{"jupiter", "raydium"},
			MinConfidence:   0.0,
		},
		Risk: RiskConfig{
			TradingEnabled:     true,
			MaxPositionSizePct: 0.20,
			MaxPositionRiskPct: 0.02,
			StopDistancePct:    0.05,
			DailyLossLimitPct:  0.15,
			MaxDrawdownPct:     0.25,
			MaxLeverage:        1.0,
		},
		Execution: ExecutionConfig{
			MaxChunkSize:      5.0,
			SplitThreshold:    5.0,
			JitterMinMs:       200,
			JitterMaxMs:       1500,
			MaxRetries:        3,
			RetryBaseDelayMs:  100,
			RetryMaxDelayMs:   2000,
			PriceStalenessMs:  10000,
			RotateWallets:     true,
			DefaultMaxSlipPct: 0.01,
			DefaultMaxFee:     0.05,
			RateLimit:         10,
			RateBurst:         15,
			PoolWorkers:       4,
			PoolCapacity:      32,
		},
		Scheduler: SchedulerConfig{
			SweepIntervalMs:      5000,
			MaxPendingAgeSeconds: 86400,
			TriggerBuffer:        64,
		},
		Feed: FeedConfig{
			URL:              "wss://example.invalid/stream",
			Pairs:            []string{"SOL/USDC"},
			ReconnectDelayMs: 5000,
		},
		Wallets: WalletsConfig{
			Addresses: []string{"wallet-main"},
		},
		Ledger: LedgerConfig{
			ReconcileIntervalSeconds: 60,
			ReconcileTolerance:       0.01,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:     9090,
			EnableMetrics:   false,
			DashboardPort:   8080,
			EnableDashboard: false,
		},
	}
}
