package nn

// ArgMax returns the index of the first largest value, or -1 for an empty slice
func ArgMax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// CountZeros returns how many entries of v are exactly zero
func CountZeros(v []float32) int {
	c := 0
	for _, x := range v {
		if x == 0 {
			c++
		}
	}
	return c
}

// ToFloat64 widens a float32 slice
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
