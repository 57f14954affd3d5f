package sparse

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/openfluke/dynsparse/nn"
)

// MaskStore owns one mask per sparse layer together with the connection
// budget fixed when the mask was first drawn.
type MaskStore struct {
	layers    []int // network layer index of each sparse layer
	masks     []Mask
	numParams []int
}

// NewMaskStore selects the layers with weights among net.Layers[start:end],
// draws a Bernoulli mask of density epsilon*sum(shape)/prod(shape) for each,
// zeroes the masked-out weights, and records the realized mask size as the
// layer's budget.
func NewMaskStore(net *nn.Network, start, end *int, epsilon float64, rng *rand.Rand) (*MaskStore, error) {
	lo, hi, err := resolveRange(len(net.Layers), start, end)
	if err != nil {
		return nil, err
	}

	s := &MaskStore{}
	for li := lo; li < hi; li++ {
		layer := &net.Layers[li]
		if layer.ParamKind() == "" {
			continue
		}

		shape := layer.WeightShape()
		onPerc := epsilon * float64(sum(shape)) / float64(len(layer.Kernel))

		mask := make(Mask, len(layer.Kernel))
		for i := range mask {
			mask[i] = rng.Float64() < onPerc
		}
		if err := net.ApplyMask(layer.Kernel, mask); err != nil {
			return nil, errors.Wrapf(err, "mask layer %d", li)
		}

		s.layers = append(s.layers, li)
		s.masks = append(s.masks, mask)
		s.numParams = append(s.numParams, mask.Count())
	}
	return s, nil
}

// Len returns the number of sparse layers
func (s *MaskStore) Len() int {
	return len(s.masks)
}

// LayerIndex maps a sparse layer position to its index in the network
func (s *MaskStore) LayerIndex(i int) int {
	return s.layers[i]
}

// Mask returns the current mask of sparse layer i
func (s *MaskStore) Mask(i int) Mask {
	return s.masks[i]
}

// NumParams returns the connection budget of sparse layer i
func (s *MaskStore) NumParams(i int) int {
	return s.numParams[i]
}

// Replace swaps in a new mask for sparse layer i
func (s *MaskStore) Replace(i int, m Mask) error {
	if len(m) != len(s.masks[i]) {
		return &nn.ShapeError{Layer: s.layers[i], Expected: len(s.masks[i]), Got: len(m)}
	}
	s.masks[i] = m
	return nil
}

// Sizes returns the active-entry count of every mask
func (s *MaskStore) Sizes() []int {
	out := make([]int, len(s.masks))
	for i, m := range s.masks {
		out[i] = m.Count()
	}
	return out
}

// resolveRange applies slice semantics to [start:end] over n layers.
// Negative bounds count from the end; nil bounds are open.
func resolveRange(n int, start, end *int) (int, int, error) {
	lo, hi := 0, n
	if start != nil {
		lo = *start
		if lo < 0 {
			lo += n
		}
	}
	if end != nil {
		hi = *end
		if hi < 0 {
			hi += n
		}
	}
	if lo < 0 || hi > n || lo > hi {
		return 0, 0, errors.Wrapf(ErrSparseRange, "[%s:%s] over %d layers", bound(start), bound(end), n)
	}
	return lo, hi, nil
}

func bound(p *int) string {
	if p == nil {
		return ""
	}
	return itoa(*p)
}

func sum(shape []int) int {
	s := 0
	for _, v := range shape {
		s += v
	}
	return s
}
