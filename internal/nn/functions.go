package nn

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

// UnscaleValue maps value from [-1, 1] to [min, max], clipping values outside
// the source range first.
func UnscaleValue(value, max, min float64) float64 {
	value = Sat(value, 1, -1)
	return min + (value+1)/2*(max-min)
}
