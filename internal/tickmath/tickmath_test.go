package tickmath

import (
	"math/big"
	"testing"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal: %s", s)
	}
	return v
}

// assertClose checks |got-want| <= want >> tolBits (relative tolerance 2^-tolBits).
func assertClose(t *testing.T, got, want *big.Int, tolBits uint) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	tol := new(big.Int).Rsh(want, tolBits)
	if tol.Sign() == 0 {
		tol = big.NewInt(1)
	}
	if diff.Cmp(tol) > 0 {
		t.Fatalf("ratio mismatch: got %s want %s (diff %s, tol %s)", got, want, diff, tol)
	}
}

func TestRatioAtTickUnit(t *testing.T) {
	got, err := RatioAtTick(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Lsh(big.NewInt(1), 128)
	if got.Cmp(want) != 0 {
		t.Fatalf("ratio at tick 0: got %s want 2^128", got)
	}
}

func TestRatioAtTick(t *testing.T) {
	cases := []struct {
		name    string
		tickX42 int64
		want    string
		tolBits uint
	}{
		{"one tick up", 1 << 42, "340316395157630557309720944892511388277", 100},
		{"one tick down", -(1 << 42), "340248342086729790484326174814286782777", 100},
		{"half tick", 1 << 41, "340299380613952818054172298683778356828", 100},
		{"doubling", 6932 << 42, "680577094201047317719750879891571948749", 96},
		{"100k ticks up", 100000 << 42, "7491471493045233295460405875225302951953303", 96},
		{"100k ticks down", -(100000 << 42), "15456521371644101646396978350466245", 96},
		{"max tick", MaxTickX42, "115783384785599357989926955577258778532263228622883689072079342256665390203260", 24},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RatioAtTick(tc.tickX42)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertClose(t, got, mustBig(t, tc.want), tc.tolBits)
		})
	}
}

func TestRatioAtTickOutOfBounds(t *testing.T) {
	if _, err := RatioAtTick(MaxTickX42 + 1); err != ErrTickOutOfBounds {
		t.Fatalf("expected ErrTickOutOfBounds, got %v", err)
	}
	if _, err := RatioAtTick(MinTickX42 - 1); err != ErrTickOutOfBounds {
		t.Fatalf("expected ErrTickOutOfBounds, got %v", err)
	}
}

func TestTickAtRatio(t *testing.T) {
	cases := []struct {
		name     string
		num, den int64
		want     int64
		tol      int64
	}{
		{"unity", 7, 7, 0, 0},
		{"double", 2, 1, 30486459612799146, 1 << 12},
		{"half", 1, 2, -30486459612799147, 1 << 12},
		{"three halves", 3, 2, 17833435653237519, 1 << 12},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TickAtRatio(big.NewInt(tc.num), big.NewInt(tc.den))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			diff := got - tc.want
			if diff < 0 {
				diff = -diff
			}
			if diff > tc.tol {
				t.Fatalf("tick mismatch: got %d want %d (+-%d)", got, tc.want, tc.tol)
			}
		})
	}
}

func TestTickAtRatioRejectsNonPositive(t *testing.T) {
	if _, err := TickAtRatio(big.NewInt(0), big.NewInt(1)); err != ErrInvalidRatio {
		t.Fatalf("expected ErrInvalidRatio, got %v", err)
	}
	if _, err := TickAtRatio(big.NewInt(1), big.NewInt(-3)); err != ErrInvalidRatio {
		t.Fatalf("expected ErrInvalidRatio, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	one := big.NewInt(1)
	for _, tick := range []int64{
		1 << 42, -(1 << 42), 12345 << 40, -(54321 << 40), 250000 << 42, -(250000 << 42),
	} {
		ratio, err := RatioAtTick(tick)
		if err != nil {
			t.Fatalf("ratio at %d: %v", tick, err)
		}
		back, err := TickAtRatio(ratio, new(big.Int).Lsh(one, 128))
		if err != nil {
			t.Fatalf("tick at ratio for %d: %v", tick, err)
		}
		diff := back - tick
		if diff < 0 {
			diff = -diff
		}
		// a few micro-ticks of slack for ladder truncation
		if diff > 1<<28 {
			t.Fatalf("round trip drift too large: tick %d back %d", tick, back)
		}
	}
}

func TestTickFromCumulative(t *testing.T) {
	cases := []struct {
		delta  int64
		window uint32
		want   int64
	}{
		{3600, 1800, 2 << 42},
		{-3600, 1800, -(2 << 42)},
		{900, 1800, 1 << 41},
		// rounds toward negative infinity, mirroring the pool oracle library
		{-1, 1800, -2443359173},
		{0, 1800, 0},
		{5, 0, 0},
		// windows past 2^21 seconds must not wrap the fractional shift
		{3<<23 + 1, 1 << 23, 3<<42 + 1<<19},
		{-1, 1 << 23, -(1 << 19)},
	}
	for _, tc := range cases {
		if got := TickFromCumulative(tc.delta, tc.window); got != tc.want {
			t.Fatalf("cumulative %d/%d: got %d want %d", tc.delta, tc.window, got, tc.want)
		}
	}
}

func TestMulByPow2(t *testing.T) {
	if got := MulByPow2(10<<42, 2); got != 40<<42 {
		t.Fatalf("shift up: got %d", got)
	}
	if got := MulByPow2(-(10 << 42), 1); got != -(20 << 42) {
		t.Fatalf("shift up negative: got %d", got)
	}
	// division rounds toward negative infinity
	if got := MulByPow2(-3, -1); got != -2 {
		t.Fatalf("shift down negative: got %d", got)
	}
	if got := MulByPow2(MaxTickX42, 3); got != MaxTickX42 {
		t.Fatalf("saturation high: got %d", got)
	}
	if got := MulByPow2(MinTickX42, 5); got != MinTickX42 {
		t.Fatalf("saturation low: got %d", got)
	}
}

func TestSaturatingAdd(t *testing.T) {
	if got := SaturatingAdd(MaxTickX42, 1); got != MaxTickX42 {
		t.Fatalf("saturate high: got %d", got)
	}
	if got := SaturatingAdd(MinTickX42, -1); got != MinTickX42 {
		t.Fatalf("saturate low: got %d", got)
	}
	if got := SaturatingAdd(5<<42, -(3 << 42)); got != 2<<42 {
		t.Fatalf("plain add: got %d", got)
	}
}
