// Package dexmock provides a simulated DEX venue for paper trading and tests.
package dexmock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dex_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Client fills every trade request at the cached price, charging a flat fee
// rate. Failure injection lets tests exercise the retry and fall-through
// paths of the execution engine.
type Client struct {
	name    string
	cache   core.IPriceCache
	feeRate decimal.Decimal

	mu          sync.Mutex
	failNext    int
	failAfter   int // -1 = disabled
	failWith    error
	submissions []*core.TradeRequest
	balance     decimal.Decimal
}

// NewClient creates a simulated venue reading prices from cache.
func NewClient(name string, cache core.IPriceCache, feeRate decimal.Decimal) *Client {
	return &Client{
		name:      name,
		cache:     cache,
		feeRate:   feeRate,
		failAfter: -1,
		balance:   decimal.Zero,
	}
}

// Name returns the venue name.
func (c *Client) Name() string { return c.name }

// SubmitTrade fills the request at the cached price. Limit orders fill at
// the limit price when it is at least as good as the cached price, otherwise
// at the cached price.
func (c *Client) SubmitTrade(_ context.Context, req *core.TradeRequest) (*core.Fill, error) {
	c.mu.Lock()
	if c.failNext > 0 || (c.failAfter >= 0 && len(c.submissions) >= c.failAfter) {
		if c.failNext > 0 {
			c.failNext--
		}
		err := c.failWith
		c.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("%s: injected venue failure", c.name)
		}
		return nil, err
	}
	c.submissions = append(c.submissions, req)
	c.mu.Unlock()

	snap, ok := c.cache.Read(req.Pair)
	if !ok {
		return nil, fmt.Errorf("%s: no price for %s", c.name, req.Pair)
	}

	price := snap.Price
	if req.Type == core.OrderTypeLimit && req.LimitPrice.Valid {
		limit := req.LimitPrice.Decimal
		if req.Side.IsBuy() && limit.LessThan(price) {
			price = limit
		}
		if req.Side.IsSell() && limit.GreaterThan(price) {
			price = limit
		}
	}

	return &core.Fill{
		OrderID:    req.OrderID,
		Pair:       req.Pair,
		Side:       req.Side,
		FilledSize: req.Size,
		AvgPrice:   price,
		FeePaid:    req.Size.Mul(price).Mul(c.feeRate),
		Venue:      c.name,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// GetPrice returns the cached price for the pair.
func (c *Client) GetPrice(_ context.Context, pair string) (decimal.Decimal, error) {
	snap, ok := c.cache.Read(pair)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: no price for %s", c.name, pair)
	}
	return snap.Price, nil
}

// GetBalance returns the configured simulated balance.
func (c *Client) GetBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

// SetBalance sets the simulated on-chain balance.
func (c *Client) SetBalance(b decimal.Decimal) {
	c.mu.Lock()
	c.balance = b
	c.mu.Unlock()
}

// FailNext makes the next n submissions fail with err (or a default error).
func (c *Client) FailNext(n int, err error) {
	c.mu.Lock()
	c.failNext = n
	c.failWith = err
	c.mu.Unlock()
}

// FailAfter lets n submissions through, then fails every later one.
func (c *Client) FailAfter(n int, err error) {
	c.mu.Lock()
	c.failAfter = n
	c.failWith = err
	c.mu.Unlock()
}

// Submissions returns the requests accepted so far.
func (c *Client) Submissions() []*core.TradeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*core.TradeRequest, len(c.submissions))
	copy(out, c.submissions)
	return out
}
