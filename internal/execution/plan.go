package execution

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// SplitChunks divides an order size into venue-sized chunks. Sizes at or
// below the split threshold go out as a single chunk; above it the size is
// cut into maxChunk pieces with the remainder last. Chunk sizes always sum
// to the input exactly.
func SplitChunks(size, maxChunk, splitThreshold decimal.Decimal) []decimal.Decimal {
	if !size.IsPositive() {
		return nil
	}
	if size.LessThanOrEqual(splitThreshold) || !maxChunk.IsPositive() {
		return []decimal.Decimal{size}
	}

	var chunks []decimal.Decimal
	remaining := size
	for remaining.GreaterThan(maxChunk) {
		chunks = append(chunks, maxChunk)
		remaining = remaining.Sub(maxChunk)
	}
	if remaining.IsPositive() {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// JitterDelay picks a uniform delay in [min, max] from the given source.
// The delay is applied before every chunk after the first.
func JitterDelay(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}
