package fixedpoint

import "testing"

func TestFromToInt(t *testing.T) {
	for _, n := range []int{0, 1, -1, 63, -63, 1000} {
		f := FromInt(n)
		if got := ToIntTrunc(f); got != n {
			t.Fatalf("ToIntTrunc(FromInt(%d)) = %d", n, got)
		}
	}
}

func TestArith(t *testing.T) {
	a := FromInt(3)
	b := FromInt(2)
	if got := ToIntTrunc(Add(a, b)); got != 5 {
		t.Fatalf("3+2 = %d", got)
	}
	if got := ToIntTrunc(Sub(a, b)); got != 1 {
		t.Fatalf("3-2 = %d", got)
	}
	if got := ToIntTrunc(Mult(a, b)); got != 6 {
		t.Fatalf("3*2 = %d", got)
	}
	if got := ToIntTrunc(Div(a, b)); got != 1 {
		t.Fatalf("3/2 trunc = %d", got)
	}
}

func TestRoundHalfDown(t *testing.T) {
	cases := []struct {
		x    Fixed
		want int
	}{
		{FromInt(2), 2},
		{FromInt(2) + F/2, 2},     // exact .5 rounds down (toward zero)
		{FromInt(2) + F/2 + 1, 3}, // just over .5 rounds up
		{FromInt(2) + F/4, 2},     // .25 rounds down
		{0, 0},
		{-(FromInt(2) + F/2), -2}, // negative exact .5 rounds toward zero
	}
	for _, c := range cases {
		if got := RoundHalfDown(c.x); got != c.want {
			t.Errorf("RoundHalfDown(%d) = %d, want %d", c.x, got, c.want)
		}
	}
}

func TestToIntRoundAwayFromZero(t *testing.T) {
	if got := ToIntRound(FromInt(2) + F/2); got != 3 {
		t.Fatalf("ToIntRound ties should round away from zero, got %d", got)
	}
}
