package nn

import "math"

// Sat clamps value to [min, max].
func Sat(value, max, min float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}

// SaturationWithSpread clamps values to the symmetric range [-spread, spread].
func SaturationWithSpread(value, spread float64) float64 {
	if spread < 0 {
		spread = -spread
	}
	return Sat(value, spread, -spread)
}

// Sanitize replaces non-finite entries with zero, writing into dst. dst may
// alias values.
func Sanitize(dst, values []float64) []float64 {
	dst = dst[:len(values)]
	for i, v := range values {
		if isFinite(v) {
			dst[i] = v
		} else {
			dst[i] = 0
		}
	}
	return dst
}

// AllFinite reports whether every value is a real number.
func AllFinite(values []float64) bool {
	for _, v := range values {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
