// Package data supplies restartable batch iterators for training and evaluation.
package data

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Batch is one flattened minibatch: Inputs is [Size * dim], Labels is [Size]
type Batch struct {
	Inputs []float32
	Labels []int
	Size   int
}

// Loader produces a finite, restartable sequence of batches.
// Len reports the number of samples in the whole dataset.
type Loader interface {
	Reset()
	Next() (Batch, bool)
	Len() int
}

// Dataset groups the loaders an experiment draws from. NoiseLoader returns
// nil when the dataset has no noisy evaluation split.
type Dataset interface {
	TrainLoader() Loader
	TestLoader() Loader
	NoiseLoader() Loader
}

// SliceLoader batches an in-memory set of samples. When Shuffle is set the
// sample order is redrawn from rng on every Reset.
type SliceLoader struct {
	inputs    []float32
	labels    []int
	dim       int
	batchSize int
	shuffle   bool
	rng       *rand.Rand

	order []int
	pos   int
}

// NewSliceLoader wraps flattened inputs [len(labels) * dim] and their labels
func NewSliceLoader(inputs []float32, labels []int, dim, batchSize int) (*SliceLoader, error) {
	if dim < 1 {
		return nil, errors.Errorf("sample dimension must be >= 1, got %d", dim)
	}
	if batchSize < 1 {
		return nil, errors.Errorf("batch size must be >= 1, got %d", batchSize)
	}
	if len(inputs) != len(labels)*dim {
		return nil, errors.Errorf("input count %d does not match %d labels of dimension %d", len(inputs), len(labels), dim)
	}

	l := &SliceLoader{
		inputs:    inputs,
		labels:    labels,
		dim:       dim,
		batchSize: batchSize,
		order:     make([]int, len(labels)),
	}
	for i := range l.order {
		l.order[i] = i
	}
	return l, nil
}

// WithShuffle enables per-epoch shuffling driven by rng
func (l *SliceLoader) WithShuffle(rng *rand.Rand) *SliceLoader {
	l.shuffle = true
	l.rng = rng
	return l
}

func (l *SliceLoader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

func (l *SliceLoader) Next() (Batch, bool) {
	if l.pos >= len(l.order) {
		return Batch{}, false
	}
	end := l.pos + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	size := end - l.pos

	b := Batch{
		Inputs: make([]float32, size*l.dim),
		Labels: make([]int, size),
		Size:   size,
	}
	for i := 0; i < size; i++ {
		idx := l.order[l.pos+i]
		copy(b.Inputs[i*l.dim:(i+1)*l.dim], l.inputs[idx*l.dim:(idx+1)*l.dim])
		b.Labels[i] = l.labels[idx]
	}
	l.pos = end
	return b, true
}

func (l *SliceLoader) Len() int {
	return len(l.labels)
}

// Dim returns the per-sample input dimension
func (l *SliceLoader) Dim() int {
	return l.dim
}

// Split is a Dataset backed by fixed loaders
type Split struct {
	Train Loader
	Test  Loader
	Noise Loader
}

func (s *Split) TrainLoader() Loader { return s.Train }
func (s *Split) TestLoader() Loader  { return s.Test }

func (s *Split) NoiseLoader() Loader { return s.Noise }
