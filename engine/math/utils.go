package math

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

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

func Lerp[T constraints.Float](lhs, rhs, t T) T {
	return lhs + (rhs-lhs)*t
}

/**
 * @brief Number of mip levels of a full chain for the given extent, that is
 * floor(log2(max(width, height, depth))) + 1. A zero extent has no levels.
 */
func MaxMipLevels(width, height, depth uint32) uint32 {
	return uint32(32 - bits.LeadingZeros32(max(width, height, depth)))
}
