package sparse

// Mask marks which entries of a weight tensor are active, in the tensor's
// storage order.
type Mask []bool

// Count returns the number of active entries
func (m Mask) Count() int {
	c := 0
	for _, v := range m {
		if v {
			c++
		}
	}
	return c
}

// And returns the elementwise conjunction. Both masks must have equal length.
func (m Mask) And(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] && o[i]
	}
	return out
}

// Or returns the elementwise disjunction. Both masks must have equal length.
func (m Mask) Or(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] || o[i]
	}
	return out
}

// Subset reports whether every active entry of m is active in o
func (m Mask) Subset(o Mask) bool {
	for i := range m {
		if m[i] && !o[i] {
			return false
		}
	}
	return true
}

// nonZero marks the entries of w that are not exactly zero
func nonZero(w []float32) Mask {
	out := make(Mask, len(w))
	for i, v := range w {
		out[i] = v != 0
	}
	return out
}
