package sparse

import (
	"math/rand"

	"github.com/pkg/errors"
)

// PruneRequest carries one sparse layer into a pruning round. Weight and Grad
// are snapshots; the policy must not keep them.
type PruneRequest struct {
	Index     int // position in the sparse layer list
	Weight    []float32
	Grad      []float32 // nil unless the policy asks for gradients
	NumParams int
	Rand      *rand.Rand
	Log       Log
}

// PruneResult is the outcome of a pruning round for one layer.
// KeepMask is always a subset of NewMask.
type PruneResult struct {
	NewMask     Mask // connections active in the next training pass
	KeepMask    Mask // existing connections that survive
	NewSynapses Mask // zero-valued connections grown this round
}

// Policy computes a replacement mask for a layer from its weights
type Policy interface {
	Name() string
	NeedsGradient() bool
	Prune(req PruneRequest) (PruneResult, error)
}

// EpochHook is implemented by policies with per-epoch state. BeginEpoch runs
// before the prune step of every training epoch, whether or not it prunes.
type EpochHook interface {
	BeginEpoch(epoch int)
}

// NewPolicy returns the policy cfg.Model names, or nil for models without pruning
func NewPolicy(cfg Config) (Policy, error) {
	switch cfg.Model {
	case ModelBase, ModelSparse:
		return nil, nil
	case ModelSET:
		return NewSET(cfg.Zeta), nil
	case ModelDSNN:
		return NewDSNN(cfg.WeightPrunePerc, cfg.GradPrunePerc, cfg.Flip, cfg.FlipEpoch), nil
	}
	return nil, errors.Wrapf(ErrUnknownModel, "%q", cfg.Model)
}

// magnitudeKeep keeps the positive weights at or above the zeta quantile of
// the positives and the negative weights at or below the (1-zeta) quantile of
// the negatives. A sign with no entries contributes nothing.
func magnitudeKeep(weight []float32, zeta float64) (Mask, error) {
	var pos, neg []float32
	for _, w := range weight {
		if w > 0 {
			pos = append(pos, w)
		} else if w < 0 {
			neg = append(neg, w)
		}
	}

	keepPos, keepNeg := len(pos) > 0, len(neg) > 0
	var posThr, negThr float32
	var err error
	if keepPos {
		if posThr, err = kthValue(pos, rank(zeta, len(pos))); err != nil {
			return nil, err
		}
	}
	if keepNeg {
		if negThr, err = kthValue(neg, rank(1-zeta, len(neg))); err != nil {
			return nil, err
		}
	}

	keep := make(Mask, len(weight))
	for i, w := range weight {
		keep[i] = (keepPos && w > 0 && w >= posThr) || (keepNeg && w < 0 && w <= negThr)
	}
	return keep, nil
}

// growthProbability is the chance of activating each zero entry so that, in
// expectation, numAdd connections are grown. It is 0 when nothing is missing.
func growthProbability(numAdd, zeroCount int) float64 {
	if numAdd <= 0 {
		return 0
	}
	p := float64(numAdd) / float64(max(zeroCount, numAdd))
	return min(max(p, 0), 1)
}

// grow draws new synapses among the zero entries of weight with probability
// p each and returns them with keep | new. One draw is taken per entry.
func grow(weight []float32, keep Mask, p float64, rng *rand.Rand) (newMask, added Mask) {
	added = make(Mask, len(weight))
	for i, w := range weight {
		added[i] = rng.Float64() < p && w == 0
	}
	return keep.Or(added), added
}

func zeros(weight []float32) int {
	c := 0
	for _, w := range weight {
		if w == 0 {
			c++
		}
	}
	return c
}
