package sparse

import (
	"slices"

	"github.com/pkg/errors"
)

// kthValue returns the k-th smallest value of values, with k counted from 1
func kthValue(values []float32, k int) (float32, error) {
	if k < 1 || k > len(values) {
		return 0, errors.Wrapf(ErrRankOutOfRange, "k=%d, n=%d", k, len(values))
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted[k-1], nil
}

// rank turns a fraction of n into a 1-based rank, never below 1
func rank(frac float64, n int) int {
	return max(int(frac*float64(n)), 1)
}
