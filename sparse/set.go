package sparse

// SET prunes the smallest-magnitude fraction zeta of each sign and regrows
// the shortfall at random zero positions.
type SET struct {
	Zeta float64
}

func NewSET(zeta float64) *SET {
	return &SET{Zeta: zeta}
}

func (p *SET) Name() string        { return ModelSET }
func (p *SET) NeedsGradient() bool { return false }

func (p *SET) Prune(req PruneRequest) (PruneResult, error) {
	keep, err := magnitudeKeep(req.Weight, p.Zeta)
	if err != nil {
		return PruneResult{}, err
	}

	numAdd := req.NumParams - keep.Count()
	prob := growthProbability(numAdd, zeros(req.Weight))
	newMask, added := grow(req.Weight, keep, prob, req.Rand)

	return PruneResult{NewMask: newMask, KeepMask: keep, NewSynapses: added}, nil
}
