// Package fixedpoint implements the signed 17.14 fixed-point arithmetic
// that the MLFQ scheduler uses for recent_cpu and load_avg (spec.md
// §4.4). Grounded on
// _examples/original_source/src/threads/fixed-point.h, which fixes
// FIXED_P=17, FIXED_Q=14 and the add/sub/mult/div operation set.
package fixedpoint

// Q is the number of fractional bits (17.14 format).
const Q = 14

// F is 1 in fixed-point representation (1 << Q).
const F = 1 << Q

// Fixed is a signed 17.14 fixed-point number stored in an int32, exactly
// as the original's "typedef int32_t fixed".
type Fixed int32

// FromInt converts an integer to fixed point ("itof").
func FromInt(n int) Fixed {
	return Fixed(n * F)
}

// ToIntTrunc truncates toward zero ("ftoi").
func ToIntTrunc(x Fixed) int {
	return int(x) / F
}

// ToIntRound rounds to the nearest integer, halves away from zero
// ("ftoi_round" in the original).
func ToIntRound(x Fixed) int {
	if x >= 0 {
		return int(x+F/2) / F
	}
	return int(x-F/2) / F
}

// RoundHalfDown implements spec.md's non-standard MLFQ priority rounding:
// "round half down" meaning an exact .5 rounds toward zero, because the
// caller (the priority formula in spec.md §4.4) always negates the
// result. Spec.md §9 calls this out explicitly as a deviation from
// ToIntRound that must be reproduced exactly, not "fixed".
func RoundHalfDown(x Fixed) int {
	if x < 0 {
		return -RoundHalfDown(-x)
	}
	base := int(x) / F
	rem := int(x) % F
	if rem*2 > F {
		return base + 1
	}
	return base
}

func Add(a, b Fixed) Fixed { return a + b }
func Sub(a, b Fixed) Fixed { return a - b }

func Mult(a, b Fixed) Fixed {
	return Fixed((int64(a) * int64(b)) / F)
}

func Div(a, b Fixed) Fixed {
	return Fixed((int64(a) * F) / int64(b))
}

func AddInt(a Fixed, n int) Fixed { return a + FromInt(n) }
func SubInt(a Fixed, n int) Fixed { return a - FromInt(n) }
func MultInt(a Fixed, n int) Fixed { return a * Fixed(n) }
func DivInt(a Fixed, n int) Fixed { return a / Fixed(n) }
