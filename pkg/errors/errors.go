// Package apperrors defines the error taxonomy shared across the engine.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable means no fresh quote exists for the pair. It is
	// never silently defaulted; callers surface it as a rejection.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrLimitsExceeded means the order would violate its slippage or fee
	// bound; raised before any network call.
	ErrLimitsExceeded = errors.New("slippage/fee limits exceeded")

	// ErrDexSubmission is a venue-level submission failure after retries.
	ErrDexSubmission = errors.New("dex submission failed")

	// ErrInsufficientPosition means a sell would take a position below zero.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrLedger is an internal ledger consistency failure. Fatal: trading
	// must halt rather than continue against a corrupted ledger.
	ErrLedger = errors.New("ledger inconsistency")

	// ErrTradingHalted means the engine kill switch is raised.
	ErrTradingHalted = errors.New("trading halted")

	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("duplicate order")
	ErrOrderExpired   = errors.New("order expired")
)

// RiskRejection is returned by the risk gate. It names the failing rule and
// quantifies by how much the limit was exceeded, never a generic failure.
type RiskRejection struct {
	Rule   string
	Detail string
	Limit  decimal.Decimal
	Actual decimal.Decimal
}

func (e *RiskRejection) Error() string {
	if e.Limit.IsZero() && e.Actual.IsZero() {
		return fmt.Sprintf("risk rejected [%s]: %s", e.Rule, e.Detail)
	}
	return fmt.Sprintf("risk rejected [%s]: %s (limit %s, actual %s)",
		e.Rule, e.Detail, e.Limit.String(), e.Actual.String())
}

// IsRiskRejection reports whether err is a risk gate rejection.
func IsRiskRejection(err error) bool {
	var rr *RiskRejection
	return errors.As(err, &rr)
}
