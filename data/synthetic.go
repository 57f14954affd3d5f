package data

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// BlobConfig describes a synthetic classification problem: one Gaussian blob
// per class around a random center.
type BlobConfig struct {
	Classes     int
	Dim         int
	TrainPerCls int
	TestPerCls  int
	Spread      float64 // stddev around each center
	Separation  float64 // centers are drawn uniformly from [-Separation, Separation]
	NoiseStd    float64 // extra stddev added to the noisy copy of the test split
	BatchSize   int
	Seed        int64
}

// DefaultBlobConfig returns a small, well separated 10-class problem
func DefaultBlobConfig() BlobConfig {
	return BlobConfig{
		Classes:     10,
		Dim:         64,
		TrainPerCls: 100,
		TestPerCls:  20,
		Spread:      0.5,
		Separation:  2,
		NoiseStd:    0.5,
		BatchSize:   32,
		Seed:        1,
	}
}

// NewBlobs generates train, test and noisy-test splits
func NewBlobs(cfg BlobConfig) (*Split, error) {
	if cfg.Classes < 2 || cfg.Dim < 1 || cfg.TrainPerCls < 1 || cfg.TestPerCls < 1 {
		return nil, errors.Errorf("invalid blob config %+v", cfg)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	centers := make([][]float64, cfg.Classes)
	for c := range centers {
		centers[c] = make([]float64, cfg.Dim)
		for d := range centers[c] {
			centers[c][d] = (rng.Float64()*2 - 1) * cfg.Separation
		}
	}

	sample := func(perClass int) ([]float32, []int) {
		n := perClass * cfg.Classes
		inputs := make([]float32, 0, n*cfg.Dim)
		labels := make([]int, 0, n)
		for i := 0; i < perClass; i++ {
			for c := 0; c < cfg.Classes; c++ {
				for d := 0; d < cfg.Dim; d++ {
					inputs = append(inputs, float32(centers[c][d]+rng.NormFloat64()*cfg.Spread))
				}
				labels = append(labels, c)
			}
		}
		return inputs, labels
	}

	trainX, trainY := sample(cfg.TrainPerCls)
	testX, testY := sample(cfg.TestPerCls)

	train, err := NewSliceLoader(trainX, trainY, cfg.Dim, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	test, err := NewSliceLoader(testX, testY, cfg.Dim, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	split := &Split{Train: train.WithShuffle(rng), Test: test}

	if cfg.NoiseStd > 0 {
		noisy, err := NewSliceLoader(AddNoise(testX, cfg.NoiseStd, rng), testY, cfg.Dim, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		split.Noise = noisy
	}
	return split, nil
}

// AddNoise returns a copy of inputs with N(0, std^2) noise added to every value
func AddNoise(inputs []float32, std float64, rng *rand.Rand) []float32 {
	out := make([]float32, len(inputs))
	for i, v := range inputs {
		out[i] = v + float32(rng.NormFloat64()*std)
	}
	return out
}

// FeatureStats returns the per-feature mean and standard deviation of
// flattened samples [n * dim].
func FeatureStats(inputs []float32, dim int) (means, stds []float64) {
	if dim < 1 || len(inputs) < dim {
		return nil, nil
	}
	n := len(inputs) / dim
	means = make([]float64, dim)
	stds = make([]float64, dim)
	col := make([]float64, n)
	for d := 0; d < dim; d++ {
		for i := 0; i < n; i++ {
			col[i] = float64(inputs[i*dim+d])
		}
		means[d], stds[d] = stat.MeanStdDev(col, nil)
	}
	return means, stds
}
