// Package univ3 defines the narrow interfaces through which the oracle
// consumes external Uniswap v3 liquidity pools, plus the on-chain adapter
// implementing them over an RPC client.
package univ3

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeTier identifies a pool fee level and its tick spacing.
type FeeTier struct {
	Fee         uint32
	TickSpacing int32
}

// BuiltinFeeTiers are the four well-known fee tiers every deployment ships
// with. Additional tiers can be registered at runtime, bounded by the oracle.
var BuiltinFeeTiers = []FeeTier{
	{Fee: 100, TickSpacing: 1},
	{Fee: 500, TickSpacing: 10},
	{Fee: 3000, TickSpacing: 60},
	{Fee: 10000, TickSpacing: 200},
}

// ErrNoPool reports that no pool exists for a pair at a fee tier.
var ErrNoPool = errors.New("no pool for pair at fee tier")

// Observation is the aggregate a pool reports over a trailing window.
type Observation struct {
	// TickCumulativeDelta is the difference of the pool's cumulative tick
	// counter across the window.
	TickCumulativeDelta int64
	// MeanLiquidity is the harmonic mean in-range liquidity over the window.
	MeanLiquidity *big.Int
	// Window is the span in seconds actually covered. It equals the requested
	// window unless the pool's observation history is shorter, in which case
	// the longest available span is served.
	Window uint32
}

// Pool is a single external liquidity pool.
type Pool interface {
	// Observe aggregates price and liquidity over the trailing window.
	Observe(ctx context.Context, window uint32) (Observation, error)
	// Liquidity returns the current in-range liquidity.
	Liquidity(ctx context.Context) (*big.Int, error)
	// GrowObservationBuffer requests that the pool keep at least target
	// observations. Best effort.
	GrowObservationBuffer(ctx context.Context, target uint16) error
}

// Source locates pools and verifies fee tiers against the external registry.
type Source interface {
	// Pool returns the pool for the pair at the given tier, or ErrNoPool.
	Pool(ctx context.Context, tokenA, tokenB common.Address, tier FeeTier) (Pool, error)
	// TickSpacing returns the registry's tick spacing for a fee, 0 when the
	// fee level does not exist externally.
	TickSpacing(ctx context.Context, fee uint32) (int32, error)
}
