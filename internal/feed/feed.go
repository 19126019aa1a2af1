// Package feed runs the streaming market-data task that keeps the price
// cache current.
package feed

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dex_trader/internal/config"
	"dex_trader/internal/core"
	"dex_trader/pkg/websocket"

	"github.com/shopspring/decimal"
)

// PriceUpdate is broadcast to subscribers after the cache has been written,
// so a subscriber reading the cache on receipt always sees the new value.
type PriceUpdate struct {
	Pair       string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// tickMessage is the wire format of one stream tick.
type tickMessage struct {
	Pair      string `json:"pair"`
	Price     string `json:"price"`
	Timestamp int64  `json:"ts"`
}

// Feed connects to the market-data stream and is the single writer of the
// price cache.
type Feed struct {
	cfg    config.FeedConfig
	cache  core.IPriceCache
	logger core.ILogger

	client *websocket.Client

	subscribers []chan PriceUpdate
	mu          sync.RWMutex

	isRunning  int32
	lastUpdate atomic.Value // holds time.Time
}

// New creates a feed writing into cache.
func New(cfg config.FeedConfig, cache core.IPriceCache, logger core.ILogger) *Feed {
	f := &Feed{
		cfg:    cfg,
		cache:  cache,
		logger: logger.WithField("component", "feed"),
	}
	f.lastUpdate.Store(time.Time{})
	return f
}

// Start connects the stream and begins updating the cache.
func (f *Feed) Start() error {
	if !atomic.CompareAndSwapInt32(&f.isRunning, 0, 1) {
		return fmt.Errorf("feed is already running")
	}

	f.logger.Info("Starting market data feed", "url", f.cfg.URL, "pairs", f.cfg.Pairs)

	client := websocket.NewClient(f.cfg.URL, f.handleMessage, f.logger)
	if f.cfg.ReconnectDelayMs > 0 {
		client.SetReconnectWait(f.cfg.ReconnectDelay())
	}
	client.SetOnConnected(func() {
		sub := map[string]interface{}{
			"op":    "subscribe",
			"pairs": f.cfg.Pairs,
		}
		if err := client.Send(sub); err != nil {
			f.logger.Error("Failed to send subscription", "error", err)
		}
	})

	f.mu.Lock()
	f.client = client
	f.mu.Unlock()

	client.Start()
	return nil
}

// Stop disconnects the stream. Cache contents are left intact; staleness is
// the readers' concern.
func (f *Feed) Stop() error {
	if !atomic.CompareAndSwapInt32(&f.isRunning, 1, 0) {
		return nil
	}

	f.mu.Lock()
	client := f.client
	f.client = nil
	f.mu.Unlock()

	if client != nil {
		client.Stop()
	}
	f.logger.Info("Market data feed stopped")
	return nil
}

// Subscribe returns a channel of price updates. Slow subscribers drop
// updates rather than stalling the feed.
func (f *Feed) Subscribe() <-chan PriceUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan PriceUpdate, 64)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// CheckHealth returns an error if the feed looks dead.
func (f *Feed) CheckHealth() error {
	if atomic.LoadInt32(&f.isRunning) != 1 {
		return fmt.Errorf("feed is not running")
	}

	last := f.lastUpdate.Load().(time.Time)
	if last.IsZero() {
		return fmt.Errorf("no price updates received yet")
	}
	if time.Since(last) > time.Minute {
		return fmt.Errorf("stale feed: last update %s ago", time.Since(last))
	}
	return nil
}

func (f *Feed) handleMessage(raw []byte) {
	var tick tickMessage
	if err := json.Unmarshal(raw, &tick); err != nil {
		f.logger.Warn("Dropping malformed tick", "error", err)
		return
	}
	if tick.Pair == "" {
		return
	}

	price, err := decimal.NewFromString(tick.Price)
	if err != nil || !price.IsPositive() {
		f.logger.Warn("Dropping tick with bad price", "pair", tick.Pair, "price", tick.Price)
		return
	}

	f.publish(tick.Pair, price)
}

// publish writes the cache and then notifies subscribers. Exposed to tests
// through Inject.
func (f *Feed) publish(pair string, price decimal.Decimal) {
	f.cache.Update(pair, price)
	f.lastUpdate.Store(time.Now())

	update := PriceUpdate{Pair: pair, Price: price, ObservedAt: time.Now()}

	f.mu.RLock()
	subscribers := make([]chan PriceUpdate, len(f.subscribers))
	copy(subscribers, f.subscribers)
	f.mu.RUnlock()

	for _, sub := range subscribers {
		select {
		case sub <- update:
		default:
			f.logger.Warn("Subscriber channel full, dropping price update", "pair", pair)
		}
	}
}

// Inject feeds a price as if it had arrived on the stream. Used by paper
// trading wiring and tests.
func (f *Feed) Inject(pair string, price decimal.Decimal) {
	f.publish(pair, price)
}
