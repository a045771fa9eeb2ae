package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Int32 saturates v to the int32 range.
func Int32[T constraints.Signed](v T) int32 {
	return int32(Clamp(int64(v), math.MinInt32, math.MaxInt32))
}
