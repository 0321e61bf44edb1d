// Package fees computes mint/burn fee amounts and their split across the
// liquidity side, the staker pool, protocol-owned liquidity and the protocol
// treasury. All functions are pure and operate on non-negative big.Int
// amounts with floor division; the remainder of the split is assigned to the
// largest bucket so the parts always sum exactly to the whole.
package fees

import (
	"errors"
	"fmt"
	"math/big"
)

// BasisPoints is the denominator for all fee rates.
const BasisPoints = 10_000

// Fixed split of a collected fee, in basis points of the fee amount.
// Order matters: ties on the largest-remainder rule break toward the lowest
// index.
const (
	shareLiquidityBps = 5_000
	shareStakersBps   = 3_000
	sharePOLBps       = 1_000
	shareTreasuryBps  = 1_000
)

var (
	ErrRateTooHigh     = errors.New("fee rate reaches or exceeds 100%")
	ErrNegativeAmount  = errors.New("fee amount must be non-negative")
	errTierOutOfRange  = errors.New("leverage tier out of supported range")
	basisPointsBig     = big.NewInt(BasisPoints)
	splitSharesBps     = [4]int64{shareLiquidityBps, shareStakersBps, sharePOLBps, shareTreasuryBps}
)

// Breakdown is the outcome of applying a fee to a gross collateral amount.
// Net + ToLiquidity + ToStakers + ToPOL + ToTreasury == gross, always.
type Breakdown struct {
	Net         *big.Int
	ToLiquidity *big.Int
	ToStakers   *big.Int
	ToPOL       *big.Int
	ToTreasury  *big.Int
}

// Fee returns the sum of all non-net buckets.
func (b Breakdown) Fee() *big.Int {
	fee := new(big.Int).Add(b.ToLiquidity, b.ToStakers)
	fee.Add(fee, b.ToPOL)
	return fee.Add(fee, b.ToTreasury)
}

// Calculator derives fee amounts from a base-fee rate and a leverage tier.
type Calculator struct {
	baseFeeBps      uint32
	liquidityFeeBps uint32
}

// NewCalculator validates the rates. The base fee is the per-unit-of-extra-
// leverage rate charged on the leveraged side; the liquidity-side rate is
// flat and independent of the tier.
func NewCalculator(baseFeeBps, liquidityFeeBps uint32) (Calculator, error) {
	// tier 2 quadruples the base fee, so a base at or above 25% would consume
	// the whole deposit
	if uint64(baseFeeBps)*4 >= BasisPoints {
		return Calculator{}, fmt.Errorf("base fee %d bps: %w", baseFeeBps, ErrRateTooHigh)
	}
	if liquidityFeeBps >= BasisPoints {
		return Calculator{}, fmt.Errorf("liquidity fee %d bps: %w", liquidityFeeBps, ErrRateTooHigh)
	}
	return Calculator{baseFeeBps: baseFeeBps, liquidityFeeBps: liquidityFeeBps}, nil
}

// FeeOnGross computes the fee charged on a gross amount. On the leveraged
// side the rate is baseFee*(leverageRatio-1) = baseFee*2^tier; the liquidity
// side pays the flat liquidity rate regardless of tier. Floor division: the
// fee never exceeds what the gross amount can cover.
func (c Calculator) FeeOnGross(gross *big.Int, leveraged bool, leverageTier int8) (*big.Int, error) {
	if gross == nil || gross.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if leverageTier < -3 || leverageTier > 2 {
		return nil, fmt.Errorf("tier %d: %w", leverageTier, errTierOutOfRange)
	}

	fee := new(big.Int)
	if !leveraged {
		fee.Mul(gross, big.NewInt(int64(c.liquidityFeeBps)))
		return fee.Quo(fee, basisPointsBig), nil
	}

	fee.Mul(gross, big.NewInt(int64(c.baseFeeBps)))
	if leverageTier >= 0 {
		fee.Lsh(fee, uint(leverageTier))
		fee.Quo(fee, basisPointsBig)
	} else {
		den := new(big.Int).Lsh(basisPointsBig, uint(-leverageTier))
		fee.Quo(fee, den)
	}
	return fee, nil
}

// Split divides a fee across the four buckets by the fixed proportions,
// assigning the integer-division remainder to the bucket holding the largest
// amount (lowest index on ties).
func Split(fee *big.Int) (toLiquidity, toStakers, toPOL, toTreasury *big.Int) {
	var parts [4]*big.Int
	assigned := new(big.Int)
	for i, share := range splitSharesBps {
		parts[i] = new(big.Int).Mul(fee, big.NewInt(share))
		parts[i].Quo(parts[i], basisPointsBig)
		assigned.Add(assigned, parts[i])
	}

	remainder := new(big.Int).Sub(fee, assigned)
	if remainder.Sign() > 0 {
		largest := 0
		for i := 1; i < len(parts); i++ {
			if parts[i].Cmp(parts[largest]) > 0 {
				largest = i
			}
		}
		parts[largest].Add(parts[largest], remainder)
	}
	return parts[0], parts[1], parts[2], parts[3]
}

// OnGross computes the full breakdown of a gross amount: fee, split, and net
// remainder.
func (c Calculator) OnGross(gross *big.Int, leveraged bool, leverageTier int8) (Breakdown, error) {
	fee, err := c.FeeOnGross(gross, leveraged, leverageTier)
	if err != nil {
		return Breakdown{}, err
	}

	toLiquidity, toStakers, toPOL, toTreasury := Split(fee)
	net := new(big.Int).Sub(gross, fee)
	return Breakdown{
		Net:         net,
		ToLiquidity: toLiquidity,
		ToStakers:   toStakers,
		ToPOL:       toPOL,
		ToTreasury:  toTreasury,
	}, nil
}
