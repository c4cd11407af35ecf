package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// DivCeil divides rounding up. A zero divisor returns zero.
func DivCeil[T constraints.Unsigned](n, d T) T {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

/**
 * @brief Indicates if the value is a power of 2. 0 is considered _not_ a power of 2.
 */
func IsPowerOf2[T constraints.Unsigned](value T) bool {
	return (value != 0) && ((value & (value - 1)) == 0)
}
