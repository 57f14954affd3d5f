package nn

import (
	"math"
	"math/rand"
)

// InitDenseLayer initializes a dense (fully-connected) layer with He-normal
// weights drawn from rng and zero biases. A nil rng uses the global source.
func InitDenseLayer(inputSize, outputSize int, activation ActivationType, rng *rand.Rand) LayerConfig {
	stddev := float32(math.Sqrt(2.0 / float64(inputSize)))

	weights := make([]float32, inputSize*outputSize)
	for i := range weights {
		weights[i] = float32(normFloat64(rng)) * stddev
	}

	return LayerConfig{
		Type:         LayerDense,
		Activation:   activation,
		InputHeight:  inputSize,  // Reused as inputSize
		OutputHeight: outputSize, // Reused as outputSize
		Kernel:       weights,    // Weight matrix [inputSize * outputSize]
		Bias:         make([]float32, outputSize),
	}
}

// denseForwardCPU performs forward pass for dense layer
// input: [batchSize * inputSize]
// weights: [inputSize * outputSize]
// output: [batchSize * outputSize]
func denseForwardCPU(input []float32, config *LayerConfig, batchSize int) ([]float32, []float32) {
	inputSize := config.InputHeight
	outputSize := config.OutputHeight
	weights := config.Kernel
	bias := config.Bias

	preAct := make([]float32, batchSize*outputSize)
	postAct := make([]float32, batchSize*outputSize)

	// output = input @ weights + bias
	for b := 0; b < batchSize; b++ {
		for o := 0; o < outputSize; o++ {
			sum := float32(0)
			for i := 0; i < inputSize; i++ {
				sum += input[b*inputSize+i] * weights[i*outputSize+o]
			}
			sum += bias[o]

			outIdx := b*outputSize + o
			preAct[outIdx] = sum
			postAct[outIdx] = activateCPU(sum, config.Activation)
		}
	}

	return preAct, postAct
}

// denseBackwardCPU performs backward pass for dense layer.
// Returns gradInput, gradWeights, gradBias.
func denseBackwardCPU(gradOutput, input, preAct []float32, config *LayerConfig, batchSize int) ([]float32, []float32, []float32) {
	inputSize := config.InputHeight
	outputSize := config.OutputHeight
	weights := config.Kernel

	gradInput := make([]float32, batchSize*inputSize)
	gradWeights := make([]float32, inputSize*outputSize)
	gradBias := make([]float32, outputSize)

	for b := 0; b < batchSize; b++ {
		for o := 0; o < outputSize; o++ {
			outIdx := b*outputSize + o
			grad := gradOutput[outIdx] * activateDerivativeCPU(preAct[outIdx], config.Activation)

			gradBias[o] += grad

			for i := 0; i < inputSize; i++ {
				inputIdx := b*inputSize + i
				weightIdx := i*outputSize + o

				gradWeights[weightIdx] += input[inputIdx] * grad
				gradInput[inputIdx] += weights[weightIdx] * grad
			}
		}
	}

	return gradInput, gradWeights, gradBias
}

func normFloat64(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.NormFloat64()
	}
	return rng.NormFloat64()
}
