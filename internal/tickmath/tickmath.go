// Package tickmath implements fixed-point conversions between the signed
// Q21.42 tick-price representation and linear Q128.128 ratios. A tick price t
// denotes the ratio 1.0001^(t/2^42); one whole tick is one basis point. All
// arithmetic is integer-only.
package tickmath

import (
	"errors"
	"math"
	"math/big"
	"math/bits"
)

const (
	// FractionalBits is the number of fractional bits in an X42 tick price.
	FractionalBits = 42

	// MaxTick mirrors the largest integer tick a v3 pool can report.
	MaxTick = 887272

	// MaxTickX42 and MinTickX42 bound the domain of RatioAtTick.
	MaxTickX42 = int64(MaxTick) << FractionalBits
	MinTickX42 = -MaxTickX42
)

var (
	ErrTickOutOfBounds = errors.New("tick price out of bounds")
	ErrInvalidRatio    = errors.New("ratio operands must be positive")

	// invLog2TickQ64 is floor(2^64 / log2(1.0001)), the scale factor that turns a
	// Q64.64 binary logarithm into X42 ticks.
	invLog2TickQ64, _ = new(big.Int).SetString("127869479499801913173570", 10)

	q128 = new(big.Int).Lsh(big.NewInt(1), 128)
	q512 = new(big.Int).Lsh(big.NewInt(1), 512)
)

// RatioAtTick returns 1.0001^(tickX42/2^42) as an unsigned Q128.128 ratio.
// The result is a fresh big.Int. The ladder product is accumulated with 384
// fractional bits: near +MaxTickX42 the reciprocal shrinks toward 2^-128, and
// the inversion below needs the extra headroom to keep the result accurate.
func RatioAtTick(tickX42 int64) (*big.Int, error) {
	if tickX42 > MaxTickX42 || tickX42 < MinTickX42 {
		return nil, ErrTickOutOfBounds
	}

	abs := uint64(tickX42)
	if tickX42 < 0 {
		abs = uint64(-tickX42)
	}

	acc := new(big.Int).Lsh(big.NewInt(1), 384)
	for i := 0; i < len(ratioLadder) && abs != 0; i++ {
		if abs&1 != 0 {
			acc.Mul(acc, ratioLadder[i].ToBig())
			acc.Rsh(acc, 128)
		}
		abs >>= 1
	}

	if tickX42 > 0 {
		return acc.Quo(q512, acc), nil
	}
	return acc.Rsh(acc, 256), nil
}

// TickAtRatio returns log base 1.0001 of num/den as an X42 tick price,
// rounded toward negative infinity. Both operands must be positive.
func TickAtRatio(num, den *big.Int) (int64, error) {
	if num == nil || den == nil || num.Sign() <= 0 || den.Sign() <= 0 {
		return 0, ErrInvalidRatio
	}

	// Normalize num/den to a Q128.128 mantissa in [2^128, 2^129) plus a binary
	// exponent, then extract 64 fractional log2 bits by repeated squaring.
	exp := num.BitLen() - den.BitLen()
	mantissa := new(big.Int)
	if shift := 128 - exp; shift >= 0 {
		mantissa.Lsh(num, uint(shift))
	} else {
		mantissa.Rsh(num, uint(-shift))
	}
	mantissa.Quo(mantissa, den)
	if mantissa.Cmp(q128) < 0 {
		mantissa.Lsh(mantissa, 1)
		exp--
	}

	frac := new(big.Int)
	for i := 0; i < 64; i++ {
		mantissa.Mul(mantissa, mantissa)
		mantissa.Rsh(mantissa, 128)
		frac.Lsh(frac, 1)
		if mantissa.BitLen() > 129 {
			mantissa.Rsh(mantissa, 1)
			frac.Or(frac, big.NewInt(1))
		}
	}

	// log2(num/den) in Q64.64, signed.
	log2 := new(big.Int).Lsh(big.NewInt(int64(exp)), 64)
	log2.Add(log2, frac)

	tick := log2.Mul(log2, invLog2TickQ64)
	floorRsh(tick, 64+64-FractionalBits)
	if !tick.IsInt64() {
		return 0, ErrTickOutOfBounds
	}
	return tick.Int64(), nil
}

// TickFromCumulative converts a cumulative-tick delta over a window of seconds
// into an X42 tick price, rounding toward negative infinity as the v3 oracle
// library does.
func TickFromCumulative(delta int64, window uint32) int64 {
	if window == 0 {
		return 0
	}
	w := int64(window)
	q := delta / w
	r := delta % w
	if r < 0 {
		q--
		r += w
	}
	// r < window can still overflow an int64 when shifted by 42 bits, so the
	// fractional quotient is taken at 128-bit width. It is below 2^42 because
	// r < window, so Div64 cannot overflow.
	frac, _ := bits.Div64(uint64(r)>>(64-FractionalBits), uint64(r)<<FractionalBits, uint64(window))
	return q<<FractionalBits + int64(frac)
}

// MulByPow2 multiplies an X42 tick price by 2^pow (negative pow divides,
// rounding toward negative infinity), saturating at the tick domain bounds.
func MulByPow2(tickX42 int64, pow int8) int64 {
	if pow < 0 {
		return tickX42 >> uint(-pow)
	}
	shifted := tickX42 << uint(pow)
	if shifted>>uint(pow) != tickX42 || shifted > MaxTickX42 || shifted < MinTickX42 {
		if tickX42 > 0 {
			return MaxTickX42
		}
		return MinTickX42
	}
	return shifted
}

// SaturatingAdd adds two X42 tick prices, clamping to the tick domain.
func SaturatingAdd(a, b int64) int64 {
	sum := a + b
	if (b > 0 && sum < a) || sum > MaxTickX42 {
		return MaxTickX42
	}
	if (b < 0 && sum > a) || sum < MinTickX42 {
		return MinTickX42
	}
	return sum
}

// Clamp bounds an arbitrary int64 into the valid tick domain.
func Clamp(tickX42 int64) int64 {
	if tickX42 > MaxTickX42 {
		return MaxTickX42
	}
	if tickX42 < MinTickX42 {
		return MinTickX42
	}
	return tickX42
}

// floorRsh shifts right in place with floor semantics for negative values.
func floorRsh(v *big.Int, bits uint) {
	neg := v.Sign() < 0
	if neg {
		v.Neg(v)
		v.Sub(v, big.NewInt(1))
		v.Rsh(v, bits)
		v.Add(v, big.NewInt(1))
		v.Neg(v)
		return
	}
	v.Rsh(v, bits)
}

// TickHigh and TickLow are sentinel tick prices stored when one side holds the
// whole vault. Both sit outside the valid tick domain on purpose.
const (
	TickHigh = math.MaxInt64
	TickLow  = math.MinInt64
)
