// Package validate checks operator-supplied identifiers before they reach
// the trading path.
package validate

import (
	"fmt"
	"regexp"
)

var (
	// Pairs are BASE/QUOTE with uppercase alphanumeric symbols.
	pairPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}/[A-Z0-9]{2,10}$`)

	// Wallet labels and on-chain addresses: alphanumeric plus the local
	// "wallet-N" labels used in paper trading.
	addressPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)
)

// Pair validates a trading pair identifier like "SOL/USDC".
func Pair(pair string) error {
	if !pairPattern.MatchString(pair) {
		return fmt.Errorf("invalid pair %q: want BASE/QUOTE with uppercase symbols", pair)
	}
	return nil
}

// WalletAddress validates a wallet address or label.
func WalletAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("invalid wallet address %q", addr)
	}
	return nil
}
