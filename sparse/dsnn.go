package sparse

import (
	"github.com/pkg/errors"

	"github.com/openfluke/dynsparse/nn"
)

// DSNN prunes with two criteria that must both agree: the magnitude rule of
// SET with a configurable quantile, and a gradient rule that keeps existing
// connections whose signed gradient is at or above the GradPrunePerc quantile.
type DSNN struct {
	WeightPrunePerc float64
	GradPrunePerc   float64

	// PruneGradSign multiplies grad*sign(weight) in the gradient rule. It
	// starts at +1 when Flip is set and drops to -1 for good at FlipEpoch.
	PruneGradSign float32
	Flip          bool
	FlipEpoch     int
}

func NewDSNN(weightPrunePerc, gradPrunePerc float64, flip bool, flipEpoch int) *DSNN {
	p := &DSNN{
		WeightPrunePerc: weightPrunePerc,
		GradPrunePerc:   gradPrunePerc,
		PruneGradSign:   -1,
		Flip:            flip,
		FlipEpoch:       flipEpoch,
	}
	if flip {
		p.PruneGradSign = 1
	}
	return p
}

func (p *DSNN) Name() string        { return ModelDSNN }
func (p *DSNN) NeedsGradient() bool { return true }

// BeginEpoch applies the one-shot flip schedule
func (p *DSNN) BeginEpoch(epoch int) {
	if p.Flip && epoch == p.FlipEpoch && p.PruneGradSign == 1 {
		p.PruneGradSign = -1
	}
}

func (p *DSNN) Prune(req PruneRequest) (PruneResult, error) {
	if req.Grad == nil {
		return PruneResult{}, errors.Wrapf(ErrNoGradient, "sparse layer %d", req.Index)
	}
	if len(req.Grad) != len(req.Weight) {
		return PruneResult{}, &nn.ShapeError{Layer: req.Index, Expected: len(req.Weight), Got: len(req.Grad)}
	}

	weightKeep, err := magnitudeKeep(req.Weight, p.WeightPrunePerc)
	if err != nil {
		return PruneResult{}, err
	}

	gradKeep, err := p.gradientKeep(req.Weight, req.Grad)
	if err != nil {
		return PruneResult{}, err
	}

	keep := weightKeep.And(gradKeep)
	numAdd := req.NumParams - keep.Count()
	zeroCount := zeros(req.Weight)
	newMask, added := grow(req.Weight, keep, growthProbability(numAdd, zeroCount), req.Rand)

	if req.Log != nil {
		req.Log[layerKey("weight_keep_mask", req.Index)] = weightKeep.Count()
		req.Log[layerKey("grad_keep_mask", req.Index)] = gradKeep.Count()
		req.Log[layerKey("missing_weights", req.Index)] = numAdd
		req.Log[layerKey("zero_weights", req.Index)] = zeroCount
		req.Log[layerKey("added_synapses", req.Index)] = added.Count()
	}

	return PruneResult{NewMask: newMask, KeepMask: keep, NewSynapses: added}, nil
}

// gradientKeep scores every entry by grad * sign(weight) * PruneGradSign and
// keeps the non-zero weights scoring at or above the GradPrunePerc quantile.
func (p *DSNN) gradientKeep(weight, grad []float32) (Mask, error) {
	scores := make([]float32, len(grad))
	for i, g := range grad {
		scores[i] = g * sign(weight[i]) * p.PruneGradSign
	}
	if len(scores) == 0 {
		return Mask{}, nil
	}

	thr, err := kthValue(scores, rank(p.GradPrunePerc, len(scores)))
	if err != nil {
		return nil, err
	}

	keep := make(Mask, len(scores))
	for i, s := range scores {
		keep[i] = s >= thr && weight[i] != 0
	}
	return keep, nil
}

func sign(v float32) float32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
