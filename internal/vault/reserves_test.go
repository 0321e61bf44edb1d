package vault

import (
	"math/big"
	"testing"

	"github.com/SIR-trading/Core-sub003/internal/tickmath"
)

func within(t *testing.T, got, want *big.Int, tol int64, label string) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	if diff.CmpAbs(big.NewInt(tol)) > 0 {
		t.Fatalf("%s = %s, want %s ± %d", label, got, want, tol)
	}
}

func TestComputeReservesEmpty(t *testing.T) {
	apes, lp := ComputeReserves(new(big.Int), 0, 0, 0)
	if apes.Sign() != 0 || lp.Sign() != 0 {
		t.Fatalf("empty vault split = %s/%s, want 0/0", apes, lp)
	}
}

func TestComputeReservesSentinels(t *testing.T) {
	total := big.NewInt(123456)

	apes, lp := ComputeReserves(total, 0, tickmath.TickHigh, 1)
	if apes.Sign() != 0 || lp.Cmp(total) != 0 {
		t.Fatalf("TickHigh split = %s/%s, want 0/%s", apes, lp, total)
	}

	apes, lp = ComputeReserves(total, 0, tickmath.TickLow, 1)
	if apes.Cmp(total) != 0 || lp.Sign() != 0 {
		t.Fatalf("TickLow split = %s/%s, want %s/0", apes, lp, total)
	}
}

// At the zone boundary the leveraged share is exactly total/leverageRatio for
// every tier, and both zone formulas agree.
func TestComputeReservesAtBoundary(t *testing.T) {
	cases := []struct {
		tier      int8
		total     int64
		wantApes  int64 // total / (1+2^tier)
		wantLP    int64
	}{
		{0, 4000, 2000, 2000},
		{1, 3000, 1000, 2000},
		{2, 5000, 1000, 4000},
		{-1, 3000, 2000, 1000},
		{-2, 5000, 4000, 1000},
		{-3, 9000, 8000, 1000},
	}
	price := int64(777) << tickmath.FractionalBits
	for _, tc := range cases {
		apes, lp := ComputeReserves(big.NewInt(tc.total), price, price, tc.tier)
		if apes.Int64() != tc.wantApes || lp.Int64() != tc.wantLP {
			t.Fatalf("tier %d: split = %s/%s, want %d/%d", tc.tier, apes, lp, tc.wantApes, tc.wantLP)
		}
	}
}

// Crossing the boundary by one tick unit moves the split by a vanishing
// amount: the two zone formulas are continuous in the price.
func TestComputeReservesBoundaryContinuity(t *testing.T) {
	total := big.NewInt(1_000_000)
	tickSat := int64(777) << tickmath.FractionalBits
	for _, tier := range []int8{-3, -1, 0, 2} {
		below, _ := ComputeReserves(total, tickSat-1, tickSat, tier)
		at, _ := ComputeReserves(total, tickSat, tickSat, tier)
		within(t, below, at, 2, "apes across boundary")
	}
}

func TestComputeReservesConservation(t *testing.T) {
	total := big.NewInt(987_654_321)
	tickSat := int64(100) << tickmath.FractionalBits
	for _, tier := range []int8{-3, -2, -1, 0, 1, 2} {
		for _, price := range []int64{
			-tickmath.MaxTickX42 / 2,
			tickSat - (50 << tickmath.FractionalBits),
			tickSat,
			tickSat + (50 << tickmath.FractionalBits),
			tickmath.MaxTickX42 / 2,
		} {
			apes, lp := ComputeReserves(total, price, tickSat, tier)
			if sum := new(big.Int).Add(apes, lp); sum.Cmp(total) != 0 {
				t.Fatalf("tier %d price %d: apes+lp = %s, want %s", tier, price, sum, total)
			}
			if apes.Sign() <= 0 || lp.Sign() < 0 {
				t.Fatalf("tier %d price %d: split %s/%s has empty side", tier, price, apes, lp)
			}
		}
	}
}

// A rising price in the saturation zone shifts value from the liquidity side
// to the leveraged side.
func TestComputeReservesMonotoneInPrice(t *testing.T) {
	total := big.NewInt(1_000_000)
	tickSat := int64(0)
	prev := new(big.Int)
	for i := int64(0); i < 5; i++ {
		price := i * (10 << tickmath.FractionalBits)
		apes, _ := ComputeReserves(total, price, tickSat, 1)
		if apes.Cmp(prev) < 0 {
			t.Fatalf("apes decreased from %s to %s at price step %d", prev, apes, i)
		}
		prev = apes
	}
}

func TestComputeReservesFloorsDustSide(t *testing.T) {
	// Price far below saturation: the leveraged share rounds to zero but is
	// floored at one unit.
	total := big.NewInt(1_000_000)
	tickSat := int64(800_000) << tickmath.FractionalBits
	price := -tickSat
	apes, lp := ComputeReserves(total, price, tickSat, 2)
	if apes.Int64() != 1 {
		t.Fatalf("deep power-zone apes = %s, want floor of 1", apes)
	}
	if lp.Int64() != 999_999 {
		t.Fatalf("lp = %s, want 999999", lp)
	}
}

func TestSaturationTickSentinels(t *testing.T) {
	if got := saturationTick(new(big.Int), new(big.Int), new(big.Int), 0, 0); got != 0 {
		t.Fatalf("empty vault tickSat = %d, want 0", got)
	}
	total := big.NewInt(1000)
	if got := saturationTick(new(big.Int), total, total, 0, 0); got != tickmath.TickHigh {
		t.Fatalf("all-lp tickSat = %d, want TickHigh", got)
	}
	if got := saturationTick(total, new(big.Int), total, 0, 0); got != tickmath.TickLow {
		t.Fatalf("all-apes tickSat = %d, want TickLow", got)
	}
}

func TestSaturationTickBoundaryExact(t *testing.T) {
	// apes == total/leverageRatio sits exactly on the boundary, so the
	// saturation tick equals the price.
	price := int64(-42) << tickmath.FractionalBits
	cases := []struct {
		tier       int8
		apes, lp   int64
	}{
		{0, 2000, 2000},
		{2, 1000, 4000},
		{-2, 4000, 1000},
	}
	for _, tc := range cases {
		total := big.NewInt(tc.apes + tc.lp)
		got := saturationTick(big.NewInt(tc.apes), big.NewInt(tc.lp), total, price, tc.tier)
		if got != price {
			t.Fatalf("tier %d: tickSat = %d, want price %d", tc.tier, got, price)
		}
	}
}

// saturationTick is the inverse of ComputeReserves: recomputing the split at
// the derived tick reproduces the split it came from.
func TestSaturationTickRoundTrip(t *testing.T) {
	price := int64(12345) << tickmath.FractionalBits
	total := big.NewInt(1_000_000)
	splits := []int64{1_000, 250_000, 500_000, 750_000, 999_000}
	for _, tier := range []int8{-3, -2, -1, 0, 1, 2} {
		for _, a := range splits {
			apes := big.NewInt(a)
			lp := new(big.Int).Sub(total, apes)
			tickSat := saturationTick(apes, lp, total, price, tier)
			gotApes, gotLP := ComputeReserves(total, price, tickSat, tier)
			within(t, gotApes, apes, 2, "round-trip apes")
			within(t, gotLP, lp, 2, "round-trip lp")
		}
	}
}

// The saturation tick moves with the price: re-deriving at a shifted price
// shifts the tick by the same amount in the saturation zone.
func TestSaturationTickTracksPrice(t *testing.T) {
	apes := big.NewInt(900_000)
	lp := big.NewInt(100_000)
	total := big.NewInt(1_000_000)
	base := saturationTick(apes, lp, total, 0, 0)
	shift := int64(100) << tickmath.FractionalBits
	moved := saturationTick(apes, lp, total, shift, 0)
	if moved != base+shift {
		t.Fatalf("tickSat at shifted price = %d, want %d", moved, base+shift)
	}
}
