package sparse

import "github.com/pkg/errors"

var (
	ErrUnknownModel   = errors.New("unknown model")
	ErrSparseRange    = errors.New("invalid sparse layer range")
	ErrRankOutOfRange = errors.New("k-th value rank out of range")
	ErrNoGradient     = errors.New("no gradient recorded for layer")
	ErrEmptyLoader    = errors.New("loader has no samples")
	ErrNoNoiseLoader  = errors.New("test_noise set but dataset has no noise loader")
)
