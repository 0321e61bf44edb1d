// Package vault implements the reserve engine: it splits one vault's pooled
// collateral into a leveraged-side and a liquidity-side virtual reserve as a
// pure function of the oracle price and a stored saturation tick, and applies
// mint and burn flows against that split.
package vault

import (
	"math/big"

	"github.com/SIR-trading/Core-sub003/internal/tickmath"
)

var one = big.NewInt(1)

func pow2(bits uint) *big.Int {
	return new(big.Int).Lsh(one, bits)
}

// ComputeReserves splits total collateral between the leveraged side (apes)
// and the liquidity side (lp) for a vault at leverageTier, given the current
// price and the stored saturation tick. apes+lp == total always holds; when
// total is positive neither side is rounded to zero while the other holds
// value, the smaller side is floored at one unit instead.
//
// Below the saturation tick (power zone) the leveraged side tracks
// price^(1+2^tier) exactly; at or above it (saturation zone) the liquidity
// side degrades into a constant-product position so the vault can never owe
// more than it holds.
func ComputeReserves(total *big.Int, tickPriceX42, tickSatX42 int64, leverageTier int8) (apes, lp *big.Int) {
	apes, lp = new(big.Int), new(big.Int)
	if total == nil || total.Sign() == 0 {
		return apes, lp
	}
	switch tickSatX42 {
	case tickmath.TickHigh:
		lp.Set(total)
		return apes, lp
	case tickmath.TickLow:
		apes.Set(total)
		return apes, lp
	}

	if tickPriceX42 < tickSatX42 {
		// Power zone. The exponent is the signed distance to the saturation
		// tick scaled by 2^tier; it is non-positive, so the ratio fits Q128.
		e := tickmath.Clamp(tickmath.MulByPow2(tickPriceX42-tickSatX42, leverageTier))
		ratio, _ := tickmath.RatioAtTick(e) // in domain after Clamp

		num := new(big.Int).Mul(total, ratio)
		var den *big.Int
		if leverageTier >= 0 {
			den = new(big.Int).Add(one, pow2(uint(leverageTier)))
		} else {
			num.Lsh(num, uint(-leverageTier))
			den = new(big.Int).Add(pow2(uint(-leverageTier)), one)
		}
		den.Lsh(den, 128)

		apes.Quo(num, den)
		if apes.Sign() == 0 {
			apes.SetInt64(1)
		}
		lp.Sub(total, apes)
		return apes, lp
	}

	// Saturation zone. tickSat-tickPrice is non-positive, ratio fits Q128.
	e := tickmath.Clamp(tickSatX42 - tickPriceX42)
	ratio, _ := tickmath.RatioAtTick(e)

	num := new(big.Int).Mul(total, ratio)
	var den *big.Int
	if leverageTier >= 0 {
		num.Lsh(num, uint(leverageTier))
		den = new(big.Int).Add(pow2(uint(leverageTier)), one)
	} else {
		den = new(big.Int).Add(one, pow2(uint(-leverageTier)))
	}
	den.Lsh(den, 128)

	lp.Quo(num, den)
	if lp.Sign() == 0 {
		lp.SetInt64(1)
	}
	apes.Sub(total, lp)
	return apes, lp
}

// saturationTick inverts ComputeReserves: it returns the saturation tick that
// reproduces the given reserve split at the given price. One-sided vaults map
// to the TickHigh/TickLow sentinels; an empty vault maps to zero.
func saturationTick(apes, lp, total *big.Int, tickPriceX42 int64, leverageTier int8) int64 {
	if total == nil || total.Sign() == 0 {
		return 0
	}
	if apes.Sign() == 0 {
		return tickmath.TickHigh
	}
	if lp.Sign() == 0 {
		return tickmath.TickLow
	}

	// The zone boundary sits where apes*(1+2^tier) == total.
	var scaledApes, scaledTotal *big.Int
	if leverageTier >= 0 {
		scaledApes = new(big.Int).Mul(apes, new(big.Int).Add(one, pow2(uint(leverageTier))))
		scaledTotal = total
	} else {
		scaledApes = new(big.Int).Mul(apes, new(big.Int).Add(pow2(uint(-leverageTier)), one))
		scaledTotal = new(big.Int).Lsh(total, uint(-leverageTier))
	}

	if scaledApes.Cmp(scaledTotal) < 0 {
		// Power zone: tickSat sits log(total/(apes*l))/2^tier above the price.
		delta, err := tickmath.TickAtRatio(scaledTotal, scaledApes)
		if err != nil {
			return tickmath.TickHigh
		}
		delta = tickmath.MulByPow2(delta, -leverageTier)
		return tickmath.SaturatingAdd(tickPriceX42, delta)
	}

	// Saturation zone: tickSat sits log(lp*c/total) at or below the price.
	var num, den *big.Int
	if leverageTier >= 0 {
		num = new(big.Int).Mul(lp, new(big.Int).Add(pow2(uint(leverageTier)), one))
		den = new(big.Int).Lsh(total, uint(leverageTier))
	} else {
		num = new(big.Int).Mul(lp, new(big.Int).Add(one, pow2(uint(-leverageTier))))
		den = total
	}
	delta, err := tickmath.TickAtRatio(num, den)
	if err != nil {
		return tickmath.TickLow
	}
	return tickmath.SaturatingAdd(tickPriceX42, delta)
}
